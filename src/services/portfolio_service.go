package services

import (
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/processors"
)

type portfolioServiceImpl struct {
	aggregator   processors.Aggregator
	priceService PriceService
	reportCache  *cache.Cache
}

func NewPortfolioService(aggregator processors.Aggregator, priceService PriceService, reportCache *cache.Cache) PortfolioService {
	return &portfolioServiceImpl{
		aggregator:   aggregator,
		priceService: priceService,
		reportCache:  reportCache,
	}
}

// GetPortfolio aggregates the user's full log. Results without live
// prices are cached; live-priced results are computed fresh because the
// quotes carry their own cache inside the price service.
func (s *portfolioServiceImpl) GetPortfolio(userID int64, withLivePrices bool) (*models.AggregationResult, error) {
	cacheKey := fmt.Sprintf(ckPortfolioResult, userID)
	if !withLivePrices {
		if cached, found := s.reportCache.Get(cacheKey); found {
			logger.L.Debug("Cache hit for portfolio aggregation", "userID", userID)
			return cached.(*models.AggregationResult), nil
		}
	}

	transactions, err := FetchUserTransactions(userID)
	if err != nil {
		return nil, err
	}

	var livePrices map[string]models.LivePrice
	if withLivePrices && len(transactions) > 0 {
		funds := distinctFunds(transactions)
		livePrices, err = s.priceService.GetLivePricesForFunds(funds)
		if err != nil {
			// Aggregation still works off transaction prices; degrade
			// rather than fail the request.
			logger.L.Warn("Live price fetch failed, falling back to transaction prices", "userID", userID, "error", err)
			livePrices = nil
		}
	}

	result := s.aggregator.Aggregate(transactions, livePrices)

	if !withLivePrices {
		s.reportCache.Set(cacheKey, result, DefaultCacheExpiration)
	}
	return result, nil
}

func (s *portfolioServiceImpl) GetTimeline(userID int64) ([]models.TimelinePoint, error) {
	cacheKey := fmt.Sprintf(ckTimelineResult, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.TimelinePoint), nil
	}

	transactions, err := FetchUserTransactions(userID)
	if err != nil {
		return nil, err
	}

	timeline := s.aggregator.Aggregate(transactions, nil).Timeline
	s.reportCache.Set(cacheKey, timeline, DefaultCacheExpiration)
	return timeline, nil
}

func distinctFunds(transactions []models.Transaction) []string {
	seen := make(map[string]bool)
	var funds []string
	for _, tx := range transactions {
		if tx.Fund == "" || seen[tx.Fund] {
			continue
		}
		seen[tx.Fund] = true
		funds = append(funds, tx.Fund)
	}
	return funds
}
