// Package ledger implements the carbon credit registry and marketplace
// state machine: device registration, credit minting, listing, purchase
// and the producer verification flags.
//
// The ledger is a single logical resource. Every mutating operation
// runs to completion under one mutex with all preconditions checked
// before any state changes, so operations are atomic and linearizable
// with respect to each other. Crediting sale proceeds to the seller is
// always the last effect of the purchase path.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/types"
	"github.com/google/uuid"
)

// Ledger holds all device records, credit records, producer flags,
// token ownership and sale proceeds.
type Ledger struct {
	mu sync.Mutex

	admin     string
	devices   map[string]*models.IoTDevice
	credits   map[uint64]*models.CarbonCredit
	producers map[string]bool
	balances  map[string]int64
	nextID    uint64

	sink EventSink
	now  func() time.Time
}

// Config holds ledger configuration
type Config struct {
	// AdminAddress is the designated administrator (normalized hex address)
	AdminAddress string
	// Sink receives events from successful mutations; defaults to NopSink
	Sink EventSink
	// Now overrides the clock, for tests
	Now func() time.Time
}

// New creates an empty ledger
func New(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if cfg.AdminAddress == "" {
		return nil, fmt.Errorf("admin address cannot be empty")
	}

	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Ledger{
		admin:     cfg.AdminAddress,
		devices:   make(map[string]*models.IoTDevice),
		credits:   make(map[uint64]*models.CarbonCredit),
		producers: make(map[string]bool),
		balances:  make(map[string]int64),
		sink:      sink,
		now:       now,
	}, nil
}

// RegisterDevice registers a device id to the caller and marks the
// caller a verified producer if it wasn't already. A device id can be
// registered at most once for its entire lifetime.
func (l *Ledger) RegisterDevice(deviceID, deviceType, caller string) (*models.IoTDevice, error) {
	if deviceID == "" {
		return nil, invalidInput("deviceId", "must not be empty")
	}
	if caller == "" {
		return nil, invalidInput("caller", "must not be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.devices[deviceID]; exists {
		return nil, &types.ServiceError{
			Code:    types.CodeAlreadyRegistered,
			Message: fmt.Sprintf("device already registered: %s", deviceID),
			Details: map[string]interface{}{"deviceId": deviceID},
		}
	}

	now := l.now()
	device := &models.IoTDevice{
		DeviceID:          deviceID,
		Owner:             caller,
		DeviceType:        deviceType,
		IsActive:          true,
		LastDataTimestamp: now,
		RegisteredAt:      now,
	}
	l.devices[deviceID] = device

	if !l.producers[caller] {
		l.producers[caller] = true
		l.emit(types.EventProducerVerified, func(e *models.LedgerEvent) {
			e.Address = caller
		})
	}

	l.emit(types.EventDeviceRegistered, func(e *models.LedgerEvent) {
		e.DeviceID = deviceID
		e.Address = caller
	})

	return device.Clone(), nil
}

// MintCredit allocates the next sequential token id and stores a new
// credit owned by the caller. Preconditions are checked in order:
// verified producer, positive amount, device ownership, device active.
func (l *Ledger) MintCredit(carbonReduced int64, projectType, deviceID, caller string) (*models.CarbonCredit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.producers[caller] {
		return nil, &types.ServiceError{
			Code:    types.CodeNotVerified,
			Message: "caller is not a verified producer",
			Details: map[string]interface{}{"caller": caller},
		}
	}
	if carbonReduced <= 0 {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidAmount,
			Message: "carbon reduced must be a positive amount",
			Details: map[string]interface{}{"carbonReduced": carbonReduced},
		}
	}
	device, exists := l.devices[deviceID]
	if !exists || device.Owner != caller {
		return nil, &types.ServiceError{
			Code:    types.CodeNotAuthorized,
			Message: "caller does not own a device with this id",
			Details: map[string]interface{}{"deviceId": deviceID},
		}
	}
	if !device.IsActive {
		return nil, &types.ServiceError{
			Code:    types.CodeDeviceInactive,
			Message: fmt.Sprintf("device is deactivated: %s", deviceID),
			Details: map[string]interface{}{"deviceId": deviceID},
		}
	}

	now := l.now()
	credit := &models.CarbonCredit{
		ID:            l.nextID,
		Producer:      caller,
		Owner:         caller,
		CarbonReduced: carbonReduced,
		ProjectType:   projectType,
		IoTDeviceID:   deviceID,
		IsVerified:    true,
		Price:         0,
		ForSale:       false,
		CreatedAt:     now,
	}
	l.credits[credit.ID] = credit
	l.nextID++
	device.LastDataTimestamp = now

	l.emit(types.EventCreditMinted, func(e *models.LedgerEvent) {
		id := credit.ID
		e.TokenID = &id
		e.Address = caller
		e.CarbonReduced = carbonReduced
	})
	l.emit(types.EventDataVerified, func(e *models.LedgerEvent) {
		e.DeviceID = deviceID
		e.CarbonReduced = carbonReduced
	})

	return credit.Clone(), nil
}

// ListForSale marks a credit for sale at a fixed positive price.
// No payment changes hands.
func (l *Ledger) ListForSale(tokenID uint64, price int64, caller string) (*models.CarbonCredit, error) {
	if price <= 0 {
		// Price 0 is the not-for-sale sentinel, never a valid listing price.
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidPrice,
			Message: "listing price must be a positive amount",
			Details: map[string]interface{}{"price": price},
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	credit, exists := l.credits[tokenID]
	if !exists {
		return nil, tokenNotFound(tokenID)
	}
	if credit.Owner != caller {
		return nil, &types.ServiceError{
			Code:    types.CodeNotOwner,
			Message: "caller does not own this credit",
			Details: map[string]interface{}{"tokenId": tokenID},
		}
	}
	if credit.ForSale {
		return nil, &types.ServiceError{
			Code:    types.CodeAlreadyListed,
			Message: fmt.Sprintf("credit already listed: %d", tokenID),
			Details: map[string]interface{}{"tokenId": tokenID},
		}
	}

	credit.Price = price
	credit.ForSale = true

	l.emit(types.EventCreditListed, func(e *models.LedgerEvent) {
		id := tokenID
		e.TokenID = &id
		e.Price = price
	})

	return credit.Clone(), nil
}

// SaleReceipt describes a completed purchase
type SaleReceipt struct {
	Credit *models.CarbonCredit `json:"credit"`
	Seller string               `json:"seller"`
	Buyer  string               `json:"buyer"`
	Price  int64                `json:"price"`
}

// Purchase transfers a listed credit to the caller. Payment must match
// the listed price exactly; there is no overpayment or refund logic.
// The proceeds credit to the seller is the last effect, after all
// listing and ownership state has been committed.
func (l *Ledger) Purchase(tokenID uint64, caller string, paymentAmount int64) (*SaleReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	credit, exists := l.credits[tokenID]
	if !exists {
		return nil, tokenNotFound(tokenID)
	}
	if !credit.ForSale {
		return nil, &types.ServiceError{
			Code:    types.CodeNotForSale,
			Message: fmt.Sprintf("credit is not for sale: %d", tokenID),
			Details: map[string]interface{}{"tokenId": tokenID},
		}
	}
	if paymentAmount != credit.Price {
		return nil, &types.ServiceError{
			Code:    types.CodeWrongPayment,
			Message: "payment must equal the listed price exactly",
			Details: map[string]interface{}{
				"tokenId": tokenID,
				"price":   credit.Price,
				"payment": paymentAmount,
			},
		}
	}
	if credit.Owner == caller {
		return nil, &types.ServiceError{
			Code:    types.CodeSelfPurchase,
			Message: "caller already owns this credit",
			Details: map[string]interface{}{"tokenId": tokenID},
		}
	}

	seller := credit.Owner
	price := credit.Price

	credit.ForSale = false
	credit.Price = 0
	credit.Owner = caller

	// Funds move strictly after all token state is committed.
	l.balances[seller] += price

	l.emit(types.EventCreditSold, func(e *models.LedgerEvent) {
		id := tokenID
		e.TokenID = &id
		e.Address = caller
		e.Price = price
	})

	return &SaleReceipt{
		Credit: credit.Clone(),
		Seller: seller,
		Buyer:  caller,
		Price:  price,
	}, nil
}

// Delist withdraws an active listing without a sale.
func (l *Ledger) Delist(tokenID uint64, caller string) (*models.CarbonCredit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	credit, exists := l.credits[tokenID]
	if !exists {
		return nil, tokenNotFound(tokenID)
	}
	if credit.Owner != caller {
		return nil, &types.ServiceError{
			Code:    types.CodeNotOwner,
			Message: "caller does not own this credit",
			Details: map[string]interface{}{"tokenId": tokenID},
		}
	}
	if !credit.ForSale {
		return nil, &types.ServiceError{
			Code:    types.CodeNotForSale,
			Message: fmt.Sprintf("credit is not listed: %d", tokenID),
			Details: map[string]interface{}{"tokenId": tokenID},
		}
	}

	credit.ForSale = false
	credit.Price = 0

	l.emit(types.EventCreditDelisted, func(e *models.LedgerEvent) {
		id := tokenID
		e.TokenID = &id
	})

	return credit.Clone(), nil
}

// DeactivateDevice flips a device inactive. Administrator only.
// Silently no-ops on unknown device ids.
func (l *Ledger) DeactivateDevice(deviceID, caller string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return notAdmin(caller)
	}

	device, exists := l.devices[deviceID]
	if !exists {
		return nil
	}
	if !device.IsActive {
		return nil
	}

	device.IsActive = false

	l.emit(types.EventDeviceDeactivated, func(e *models.LedgerEvent) {
		e.DeviceID = deviceID
	})

	return nil
}

// VerifyProducer unconditionally marks an address as a verified
// producer. Administrator only. The flag is never unset.
func (l *Ledger) VerifyProducer(address, caller string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return notAdmin(caller)
	}
	if address == "" {
		return invalidInput("address", "must not be empty")
	}

	if !l.producers[address] {
		l.producers[address] = true
		l.emit(types.EventProducerVerified, func(e *models.LedgerEvent) {
			e.Address = address
		})
	}

	return nil
}

// GetCredit returns a credit by token id
func (l *Ledger) GetCredit(tokenID uint64) (*models.CarbonCredit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	credit, exists := l.credits[tokenID]
	if !exists {
		return nil, tokenNotFound(tokenID)
	}
	return credit.Clone(), nil
}

// GetDevice returns a device by id
func (l *Ledger) GetDevice(deviceID string) (*models.IoTDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	device, exists := l.devices[deviceID]
	if !exists {
		return nil, &types.ServiceError{
			Code:    types.CodeNotFound,
			Message: fmt.Sprintf("device not found: %s", deviceID),
			Details: map[string]interface{}{"deviceId": deviceID},
		}
	}
	return device.Clone(), nil
}

// OwnerOf returns the current owner of a token
func (l *Ledger) OwnerOf(tokenID uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	credit, exists := l.credits[tokenID]
	if !exists {
		return "", tokenNotFound(tokenID)
	}
	return credit.Owner, nil
}

// IsVerifiedProducer reports whether an address holds the producer flag
func (l *Ledger) IsVerifiedProducer(address string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.producers[address]
}

// TotalSupply returns the number of credits ever minted
func (l *Ledger) TotalSupply() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// BalanceOf returns the accumulated sale proceeds for an address
func (l *Ledger) BalanceOf(address string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address]
}

// Listings returns all credits currently for sale, ordered by token id
func (l *Ledger) Listings() []*models.CarbonCredit {
	l.mu.Lock()
	defer l.mu.Unlock()

	var listings []*models.CarbonCredit
	for id := uint64(0); id < l.nextID; id++ {
		if credit, ok := l.credits[id]; ok && credit.ForSale {
			listings = append(listings, credit.Clone())
		}
	}
	return listings
}

// CreditsByDevice returns all credits minted against a device, ordered
// by token id
func (l *Ledger) CreditsByDevice(deviceID string) []*models.CarbonCredit {
	l.mu.Lock()
	defer l.mu.Unlock()

	var credits []*models.CarbonCredit
	for id := uint64(0); id < l.nextID; id++ {
		if credit, ok := l.credits[id]; ok && credit.IoTDeviceID == deviceID {
			credits = append(credits, credit.Clone())
		}
	}
	return credits
}

// Restore loads previously persisted state into an empty ledger.
// Used at startup to rehydrate from Postgres.
func (l *Ledger) Restore(devices []*models.IoTDevice, credits []*models.CarbonCredit, producers []string, balances map[string]int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.nextID != 0 || len(l.devices) > 0 {
		return fmt.Errorf("restore requires an empty ledger")
	}

	for _, d := range devices {
		if d.DeviceID == "" {
			return fmt.Errorf("restore: device with empty id")
		}
		if _, dup := l.devices[d.DeviceID]; dup {
			return fmt.Errorf("restore: duplicate device id %s", d.DeviceID)
		}
		l.devices[d.DeviceID] = d.Clone()
	}

	var maxID uint64
	seen := false
	for _, c := range credits {
		if _, dup := l.credits[c.ID]; dup {
			return fmt.Errorf("restore: duplicate token id %d", c.ID)
		}
		if c.ForSale && c.Price <= 0 {
			return fmt.Errorf("restore: token %d listed without a positive price", c.ID)
		}
		l.credits[c.ID] = c.Clone()
		if !seen || c.ID > maxID {
			maxID = c.ID
			seen = true
		}
	}
	if seen {
		if uint64(len(credits)) != maxID+1 {
			return fmt.Errorf("restore: token ids must be gapless, have %d credits with max id %d", len(credits), maxID)
		}
		l.nextID = maxID + 1
	}

	for _, addr := range producers {
		l.producers[addr] = true
	}
	for addr, bal := range balances {
		l.balances[addr] = bal
	}

	return nil
}

// emit builds and publishes an event. Called with the lock held; the
// sink must not block.
func (l *Ledger) emit(eventType types.EventType, fill func(*models.LedgerEvent)) {
	event := models.LedgerEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: l.now(),
	}
	if fill != nil {
		fill(&event)
	}
	l.sink.Publish(event)
}

func invalidInput(field, reason string) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.CodeInvalidInput,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{"field": field},
	}
}

func tokenNotFound(tokenID uint64) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.CodeNotFound,
		Message: fmt.Sprintf("credit not found: %d", tokenID),
		Details: map[string]interface{}{"tokenId": tokenID},
	}
}

func notAdmin(caller string) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.CodeNotAuthorized,
		Message: "caller is not the registry administrator",
		Details: map[string]interface{}{"caller": caller},
	}
}
