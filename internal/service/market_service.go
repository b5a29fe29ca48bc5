package service

import (
	"context"

	"github.com/carbon-registry/internal/ledger"
	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
)

// MarketService handles listing, purchase and delisting of credits
type MarketService struct {
	ledger      *ledger.Ledger
	creditRepo  CreditStore
	accountRepo AccountStore
	cache       RecordCache
	logger      *logging.Logger
}

// NewMarketService creates a new market service
func NewMarketService(
	l *ledger.Ledger,
	creditRepo CreditStore,
	accountRepo AccountStore,
	cache RecordCache,
	logger *logging.Logger,
) *MarketService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &MarketService{
		ledger:      l,
		creditRepo:  creditRepo,
		accountRepo: accountRepo,
		cache:       cache,
		logger:      logger,
	}
}

// ListForSaleInput represents input for listing a credit
type ListForSaleInput struct {
	TokenID uint64 `json:"tokenId"`
	Price   int64  `json:"price"`
	Caller  string `json:"caller"`
}

// ListForSale puts a credit on the market at a fixed price
func (s *MarketService) ListForSale(ctx context.Context, input *ListForSaleInput) (*models.CarbonCredit, error) {
	caller, err := normalizeCaller(input.Caller)
	if err != nil {
		return nil, err
	}

	credit, err := s.ledger.ListForSale(input.TokenID, input.Price, caller)
	if err != nil {
		return nil, err
	}

	s.persistListing(ctx, credit)

	s.logger.WithFields(map[string]interface{}{
		"tokenId": credit.ID,
		"seller":  caller,
		"price":   credit.Price,
	}).Info("Credit listed for sale")

	return credit, nil
}

// PurchaseInput represents input for buying a listed credit
type PurchaseInput struct {
	TokenID uint64 `json:"tokenId"`
	Payment int64  `json:"payment"`
	Caller  string `json:"caller"`
}

// Purchase transfers a listed credit to the caller for exact payment.
// Seller proceeds are credited as the final step of the sale.
func (s *MarketService) Purchase(ctx context.Context, input *PurchaseInput) (*ledger.SaleReceipt, error) {
	caller, err := normalizeCaller(input.Caller)
	if err != nil {
		return nil, err
	}

	receipt, err := s.ledger.Purchase(input.TokenID, caller, input.Payment)
	if err != nil {
		return nil, err
	}

	s.persistListing(ctx, receipt.Credit)
	if err := s.accountRepo.AddProceeds(ctx, receipt.Seller, receipt.Price); err != nil {
		s.logger.WithError(err).WithField("address", receipt.Seller).Error("Failed to persist proceeds")
	}

	s.logger.WithFields(map[string]interface{}{
		"tokenId": receipt.Credit.ID,
		"seller":  receipt.Seller,
		"buyer":   receipt.Buyer,
		"price":   receipt.Price,
	}).Info("Credit sold")

	return receipt, nil
}

// DelistInput represents input for withdrawing a listing
type DelistInput struct {
	TokenID uint64 `json:"tokenId"`
	Caller  string `json:"caller"`
}

// Delist withdraws a credit from the market
func (s *MarketService) Delist(ctx context.Context, input *DelistInput) (*models.CarbonCredit, error) {
	caller, err := normalizeCaller(input.Caller)
	if err != nil {
		return nil, err
	}

	credit, err := s.ledger.Delist(input.TokenID, caller)
	if err != nil {
		return nil, err
	}

	s.persistListing(ctx, credit)

	s.logger.WithFields(map[string]interface{}{
		"tokenId": credit.ID,
		"owner":   caller,
	}).Info("Credit delisted")

	return credit, nil
}

// Listings returns all credits currently on the market
func (s *MarketService) Listings(ctx context.Context) []*models.CarbonCredit {
	return s.ledger.Listings()
}

// OwnerOf returns the current owner of a token
func (s *MarketService) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	return s.ledger.OwnerOf(tokenID)
}

// BalanceOf returns the accumulated sale proceeds of an address
func (s *MarketService) BalanceOf(ctx context.Context, address string) (int64, error) {
	addr, err := normalizeCaller(address)
	if err != nil {
		return 0, err
	}
	return s.ledger.BalanceOf(addr), nil
}

// persistListing mirrors a credit's owner/listing state to storage and
// refreshes the cache entry.
func (s *MarketService) persistListing(ctx context.Context, credit *models.CarbonCredit) {
	if err := s.creditRepo.UpdateListing(ctx, credit); err != nil {
		s.logger.WithError(err).WithField("tokenId", credit.ID).Error("Failed to persist credit listing state")
	}
	if err := s.cache.SetCredit(ctx, credit); err != nil {
		s.logger.WithError(err).Warn("Failed to cache credit")
	}
}
