// Package service composes the ledger with durable storage, caching
// and event archiving. The ledger is authoritative at runtime; Postgres
// is a write-through mirror used to rehydrate on restart.
package service

import (
	"context"
	"fmt"

	"github.com/carbon-registry/internal/ledger"
	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/types"
)

// RegistryService handles device registration, credit minting and the
// administrative operations.
type RegistryService struct {
	ledger      *ledger.Ledger
	deviceRepo  DeviceStore
	creditRepo  CreditStore
	accountRepo AccountStore
	archive     EventArchive
	cache       RecordCache
	logger      *logging.Logger
}

// NewRegistryService creates a new registry service
func NewRegistryService(
	l *ledger.Ledger,
	deviceRepo DeviceStore,
	creditRepo CreditStore,
	accountRepo AccountStore,
	archive EventArchive,
	cache RecordCache,
	logger *logging.Logger,
) *RegistryService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RegistryService{
		ledger:      l,
		deviceRepo:  deviceRepo,
		creditRepo:  creditRepo,
		accountRepo: accountRepo,
		archive:     archive,
		cache:       cache,
		logger:      logger,
	}
}

// RegisterDeviceInput represents input for registering a device
type RegisterDeviceInput struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Caller     string `json:"caller"`
}

// RegisterDevice registers a device to the caller and marks the caller
// a verified producer.
func (s *RegistryService) RegisterDevice(ctx context.Context, input *RegisterDeviceInput) (*models.IoTDevice, error) {
	caller, err := normalizeCaller(input.Caller)
	if err != nil {
		return nil, err
	}

	device, err := s.ledger.RegisterDevice(input.DeviceID, input.DeviceType, caller)
	if err != nil {
		return nil, err
	}

	// Write-through mirror; failures are logged, not surfaced. The
	// ledger already committed and stays authoritative for this process.
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		s.logger.WithError(err).WithField("deviceId", device.DeviceID).Error("Failed to persist device")
	}
	if err := s.accountRepo.MarkVerified(ctx, caller); err != nil {
		s.logger.WithError(err).WithField("address", caller).Error("Failed to persist producer flag")
	}
	if err := s.cache.SetDevice(ctx, device); err != nil {
		s.logger.WithError(err).Warn("Failed to cache device")
	}

	s.logger.WithFields(map[string]interface{}{
		"deviceId": device.DeviceID,
		"owner":    caller,
	}).Info("Device registered")

	return device, nil
}

// MintCreditInput represents input for minting a credit
type MintCreditInput struct {
	CarbonReduced int64  `json:"carbonReduced"`
	ProjectType   string `json:"projectType"`
	DeviceID      string `json:"deviceId"`
	Caller        string `json:"caller"`
}

// MintCredit mints a new credit against one of the caller's devices.
// Authorization is purely "caller owns the claimed device and is a
// verified producer"; there is no validation that carbonReduced matches
// real sensor output.
func (s *RegistryService) MintCredit(ctx context.Context, input *MintCreditInput) (*models.CarbonCredit, error) {
	caller, err := normalizeCaller(input.Caller)
	if err != nil {
		return nil, err
	}

	credit, err := s.ledger.MintCredit(input.CarbonReduced, input.ProjectType, input.DeviceID, caller)
	if err != nil {
		return nil, err
	}

	if err := s.creditRepo.Create(ctx, credit); err != nil {
		s.logger.WithError(err).WithField("tokenId", credit.ID).Error("Failed to persist credit")
	}
	if device, derr := s.ledger.GetDevice(input.DeviceID); derr == nil {
		if err := s.deviceRepo.TouchLastData(ctx, device); err != nil {
			s.logger.WithError(err).WithField("deviceId", input.DeviceID).Error("Failed to persist device timestamp")
		}
		if err := s.cache.SetDevice(ctx, device); err != nil {
			s.logger.WithError(err).Warn("Failed to cache device")
		}
	}
	if err := s.cache.SetCredit(ctx, credit); err != nil {
		s.logger.WithError(err).Warn("Failed to cache credit")
	}

	s.logger.WithFields(map[string]interface{}{
		"tokenId":       credit.ID,
		"producer":      caller,
		"carbonReduced": credit.CarbonReduced,
		"deviceId":      credit.IoTDeviceID,
	}).Info("Credit minted")

	return credit, nil
}

// GetCredit returns a credit by token id, serving from cache when warm
func (s *RegistryService) GetCredit(ctx context.Context, tokenID uint64) (*models.CarbonCredit, error) {
	if credit, found, err := s.cache.GetCredit(ctx, tokenID); err == nil && found {
		return credit, nil
	} else if err != nil {
		s.logger.WithError(err).Warn("Credit cache read failed")
	}

	credit, err := s.ledger.GetCredit(tokenID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetCredit(ctx, credit); err != nil {
		s.logger.WithError(err).Warn("Failed to cache credit")
	}

	return credit, nil
}

// GetDevice returns a device by id, serving from cache when warm
func (s *RegistryService) GetDevice(ctx context.Context, deviceID string) (*models.IoTDevice, error) {
	if device, found, err := s.cache.GetDevice(ctx, deviceID); err == nil && found {
		return device, nil
	} else if err != nil {
		s.logger.WithError(err).Warn("Device cache read failed")
	}

	device, err := s.ledger.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetDevice(ctx, device); err != nil {
		s.logger.WithError(err).Warn("Failed to cache device")
	}

	return device, nil
}

// DeviceCredits returns all credits minted against a device
func (s *RegistryService) DeviceCredits(ctx context.Context, deviceID string) ([]*models.CarbonCredit, error) {
	if _, err := s.ledger.GetDevice(deviceID); err != nil {
		return nil, err
	}
	return s.ledger.CreditsByDevice(deviceID), nil
}

// defaultEventLimit bounds archive queries when the caller does not
// supply a limit.
const defaultEventLimit = 50

// DeviceEvents returns the most recent archived events for a device,
// newest first. The archive is flushed in batches, so very recent
// activity may not appear yet.
func (s *RegistryService) DeviceEvents(ctx context.Context, deviceID string, limit int) ([]models.LedgerEvent, error) {
	if _, err := s.ledger.GetDevice(deviceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	return s.archive.RecentByDevice(ctx, deviceID, limit)
}

// EventsByType returns the most recent archived events of a given type,
// newest first.
func (s *RegistryService) EventsByType(ctx context.Context, eventType string, limit int) ([]models.LedgerEvent, error) {
	switch types.EventType(eventType) {
	case types.EventDeviceRegistered, types.EventCreditMinted, types.EventDataVerified,
		types.EventCreditListed, types.EventCreditSold, types.EventCreditDelisted,
		types.EventDeviceDeactivated, types.EventProducerVerified:
	default:
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("unknown event type: %s", eventType),
			Details: map[string]interface{}{"type": eventType},
		}
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	return s.archive.RecentByType(ctx, eventType, limit)
}

// IsVerifiedProducer reports whether an address holds the producer flag
func (s *RegistryService) IsVerifiedProducer(ctx context.Context, address string) (bool, error) {
	addr, err := normalizeCaller(address)
	if err != nil {
		return false, err
	}
	return s.ledger.IsVerifiedProducer(addr), nil
}

// TotalSupply returns the number of credits ever minted
func (s *RegistryService) TotalSupply(ctx context.Context) uint64 {
	return s.ledger.TotalSupply()
}

// DeactivateDevice flips a device inactive. Administrator only;
// silently no-ops on unknown device ids.
func (s *RegistryService) DeactivateDevice(ctx context.Context, deviceID, caller string) error {
	addr, err := normalizeCaller(caller)
	if err != nil {
		return err
	}

	if err := s.ledger.DeactivateDevice(deviceID, addr); err != nil {
		return err
	}

	if err := s.deviceRepo.SetActive(ctx, deviceID, false); err != nil {
		s.logger.WithError(err).WithField("deviceId", deviceID).Error("Failed to persist device deactivation")
	}
	if err := s.cache.InvalidateDevice(ctx, deviceID); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate device cache")
	}

	s.logger.WithField("deviceId", deviceID).Info("Device deactivated")

	return nil
}

// VerifyProducer unconditionally marks an address as a verified
// producer. Administrator only.
func (s *RegistryService) VerifyProducer(ctx context.Context, address, caller string) error {
	addr, err := normalizeCaller(address)
	if err != nil {
		return err
	}
	adminAddr, err := normalizeCaller(caller)
	if err != nil {
		return err
	}

	if err := s.ledger.VerifyProducer(addr, adminAddr); err != nil {
		return err
	}

	if err := s.accountRepo.MarkVerified(ctx, addr); err != nil {
		s.logger.WithError(err).WithField("address", addr).Error("Failed to persist producer flag")
	}

	s.logger.WithField("address", addr).Info("Producer verified")

	return nil
}

// Rehydrate rebuilds the ledger from Postgres. Called once at startup,
// before the API starts serving.
func (s *RegistryService) Rehydrate(ctx context.Context) error {
	devices, err := s.deviceRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}
	credits, err := s.creditRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credits: %w", err)
	}
	producers, err := s.accountRepo.ListVerified(ctx)
	if err != nil {
		return fmt.Errorf("failed to load producers: %w", err)
	}
	balances, err := s.accountRepo.ListBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to load balances: %w", err)
	}

	if err := s.ledger.Restore(devices, credits, producers, balances); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"devices":   len(devices),
		"credits":   len(credits),
		"producers": len(producers),
	}).Info("Ledger rehydrated from storage")

	return nil
}

// normalizeCaller validates and lowercases a caller address
func normalizeCaller(address string) (string, error) {
	if !types.IsValidAddress(address) {
		return "", &types.ServiceError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("invalid address format: %s", address),
			Details: map[string]interface{}{"address": address},
		}
	}
	return types.NormalizeAddress(address), nil
}
