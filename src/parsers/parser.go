package parsers

import (
	"io"

	"github.com/username/fundfolio/backend/src/models"
)

type Parser interface {
	Parse(file io.Reader) ([]models.Transaction, error)
}
