package parsers

import (
	"fmt"

	"github.com/username/fundfolio/backend/src/parsers/generic"
	"github.com/username/fundfolio/backend/src/parsers/voya"
)

func GetParser(source string) (Parser, error) {
	switch source {
	case "generic":
		return generic.NewParser(), nil
	case "voya":
		return voya.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
