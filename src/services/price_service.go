package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/model"
	"github.com/username/fundfolio/backend/src/models"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			Currency                   string  `json:"currency"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// priceServiceImpl fetches live quotes from Yahoo Finance. Yahoo's quote
// endpoint requires session cookies plus a crumb token scraped from a
// quote page, so the client carries a cookie jar.
type priceServiceImpl struct {
	httpClient http.Client
	quoteCache *cache.Cache
	limiter    *rate.Limiter

	// mu guards crumb. Quote fetches run concurrently and a failed
	// session leaves the crumb empty until a request re-initializes it.
	mu    sync.Mutex
	crumb string
}

// NewPriceService creates the price service, initializes the HTTP client
// with a cookie jar and fetches the Yahoo crumb.
func NewPriceService() PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	s := &priceServiceImpl{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
		quoteCache: cache.New(config.Cfg.QuoteCacheTTL, 2*config.Cfg.QuoteCacheTTL),
		limiter:    rate.NewLimiter(rate.Every(config.Cfg.QuoteRequestInterval), 1),
	}

	if err := s.initializeYahooSession(); err != nil {
		logger.L.Error("Failed to initialize Yahoo Finance session. Price fetching may fail.", "error", err)
	}

	return s
}

func (s *priceServiceImpl) currentCrumb() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumb
}

// ensureCrumb re-initializes the Yahoo session when the crumb is
// missing. Concurrent callers serialize here so only one request
// performs the re-initialization.
func (s *priceServiceImpl) ensureCrumb() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crumb != "" {
		return nil
	}
	logger.L.Warn("Yahoo crumb is missing, attempting to re-initialize session.")
	return s.initializeSessionLocked()
}

// initializeYahooSession visits a Yahoo Finance page to get the session
// cookies and the crumb.
func (s *priceServiceImpl) initializeYahooSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeSessionLocked()
}

// initializeSessionLocked does the actual session setup. Callers must
// hold mu.
func (s *priceServiceImpl) initializeSessionLocked() error {
	logger.L.Info("Initializing Yahoo Finance session to get crumb and cookies...")
	req, err := http.NewRequest("GET", "https://finance.yahoo.com/quote/VTI", nil)
	if err != nil {
		return err
	}
	// A browser User-Agent is required or Yahoo serves a consent page.
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make initial request to Yahoo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Yahoo response body: %w", err)
	}

	re := regexp.MustCompile(`"CrumbStore":{"crumb":"(.*?)"}`)
	matches := re.FindStringSubmatch(string(body))
	if len(matches) < 2 {
		return fmt.Errorf("could not find crumb in Yahoo Finance response. The page structure may have changed")
	}

	s.crumb = matches[1]
	logger.L.Info("Successfully obtained Yahoo Finance crumb.")
	return nil
}

// GetCurrentPrices returns live quotes for a set of ticker symbols.
// Quotes are cached for the configured TTL; only cache misses hit Yahoo.
func (s *priceServiceImpl) GetCurrentPrices(tickers []string) (map[string]PriceInfo, error) {
	result := make(map[string]PriceInfo)
	var misses []string
	for _, ticker := range tickers {
		if ticker == "" {
			continue
		}
		if cached, found := s.quoteCache.Get(ticker); found {
			result[ticker] = cached.(PriceInfo)
			continue
		}
		result[ticker] = PriceInfo{Status: "UNAVAILABLE"}
		misses = append(misses, ticker)
	}
	if len(misses) == 0 {
		return result, nil
	}

	if err := s.ensureCrumb(); err != nil {
		return result, fmt.Errorf("%w: %v", ErrPriceFetch, err)
	}

	for _, ticker := range misses {
		if err := s.limiter.Wait(context.Background()); err != nil {
			return result, err
		}
		info, err := s.fetchQuote(ticker)
		if err != nil {
			logger.L.Warn("Could not fetch quote", "ticker", ticker, "error", err)
			continue
		}
		s.quoteCache.Set(ticker, info, cache.DefaultExpiration)
		result[ticker] = info
	}
	return result, nil
}

// GetLivePricesForFunds resolves fund names to tickers via the
// fund_ticker_map table, fetches quotes and converts them back into
// per-unit fund prices keyed by the original fund name.
func (s *priceServiceImpl) GetLivePricesForFunds(funds []string) (map[string]models.LivePrice, error) {
	mappings, err := model.GetMappingsByFunds(database.DB, funds)
	if err != nil {
		return nil, fmt.Errorf("error loading fund ticker mappings: %w", err)
	}
	if len(mappings) == 0 {
		return map[string]models.LivePrice{}, nil
	}

	tickers := make([]string, 0, len(mappings))
	for _, m := range mappings {
		tickers = append(tickers, m.TickerSymbol)
	}

	quotes, err := s.GetCurrentPrices(tickers)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	livePrices := make(map[string]models.LivePrice)
	for fund, m := range mappings {
		quote, ok := quotes[m.TickerSymbol]
		if !ok || quote.Status != "OK" || quote.Price <= 0 {
			continue
		}
		price := quote.Price
		if m.ConversionRatio > 0 && m.ConversionRatio != 1 {
			price = price / m.ConversionRatio
		}
		livePrices[fund] = models.LivePrice{
			Price:         price,
			ChangePercent: quote.ChangePercent,
			UpdatedAt:     now,
		}
	}
	return livePrices, nil
}

// fetchQuote calls Yahoo's v7 quote endpoint, which requires the crumb.
func (s *priceServiceImpl) fetchQuote(ticker string) (PriceInfo, error) {
	quoteURL := fmt.Sprintf("https://query2.finance.yahoo.com/v7/finance/quote?symbols=%s&crumb=%s", ticker, s.currentCrumb())
	req, err := http.NewRequest("GET", quoteURL, nil)
	if err != nil {
		return PriceInfo{}, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return PriceInfo{}, fmt.Errorf("failed to call Yahoo quote API for ticker %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return PriceInfo{}, fmt.Errorf("yahoo quote API returned non-OK status %d for ticker %s. Body: %s", resp.StatusCode, ticker, string(bodyBytes))
	}

	var quoteData yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteData); err != nil {
		return PriceInfo{}, fmt.Errorf("failed to decode Yahoo quote response for ticker %s: %w", ticker, err)
	}

	if quoteData.QuoteResponse.Error != nil || len(quoteData.QuoteResponse.Result) == 0 {
		return PriceInfo{}, fmt.Errorf("yahoo quote API returned an error or no result for ticker %s", ticker)
	}

	quote := quoteData.QuoteResponse.Result[0]
	return PriceInfo{
		Status:        "OK",
		Price:         quote.RegularMarketPrice,
		ChangePercent: quote.RegularMarketChangePercent,
		Currency:      quote.Currency,
	}, nil
}
