// Package types provides common type definitions for the carbon registry system.
package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenID identifies a minted carbon credit. IDs are assigned
// sequentially starting at 0 and are never reused.
type TokenID = uint64

// EventType identifies a structured ledger event
type EventType string

const (
	// EventDeviceRegistered is emitted when a device is registered
	EventDeviceRegistered EventType = "device_registered"
	// EventCreditMinted is emitted when a credit is minted
	EventCreditMinted EventType = "credit_minted"
	// EventDataVerified is emitted alongside a mint for the source device
	EventDataVerified EventType = "data_verified"
	// EventCreditListed is emitted when a credit is listed for sale
	EventCreditListed EventType = "credit_listed"
	// EventCreditSold is emitted when a listed credit is purchased
	EventCreditSold EventType = "credit_sold"
	// EventCreditDelisted is emitted when a listing is withdrawn
	EventCreditDelisted EventType = "credit_delisted"
	// EventDeviceDeactivated is emitted when an admin deactivates a device
	EventDeviceDeactivated EventType = "device_deactivated"
	// EventProducerVerified is emitted when an address gains producer status
	EventProducerVerified EventType = "producer_verified"
)

// Error codes surfaced by ledger operations. Every failure is a
// precondition violation raised before any state mutation.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInvalidPrice      = "INVALID_PRICE"
	CodeAlreadyRegistered = "ALREADY_REGISTERED"
	CodeAlreadyListed     = "ALREADY_LISTED"
	CodeNotFound          = "NOT_FOUND"
	CodeNotAuthorized     = "NOT_AUTHORIZED"
	CodeNotOwner          = "NOT_OWNER"
	CodeNotVerified       = "NOT_VERIFIED"
	CodeDeviceInactive    = "DEVICE_INACTIVE"
	CodeNotForSale        = "NOT_FOR_SALE"
	CodeWrongPayment      = "WRONG_PAYMENT"
	CodeSelfPurchase      = "SELF_PURCHASE"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IsValidAddress reports whether s is a well-formed EVM-style hex address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress lowercases a hex address so map lookups and storage
// keys are case-insensitive. Callers must validate with IsValidAddress first.
func NormalizeAddress(s string) string {
	return strings.ToLower(common.HexToAddress(s).Hex())
}
