// Package models provides data models for the carbon registry system.
package models

import (
	"time"
)

// CarbonCredit represents a minted carbon credit token.
// Producer is immutable provenance; current ownership is tracked
// separately (see Owner) and moves on every sale.
type CarbonCredit struct {
	ID            uint64    `json:"id" db:"id"`
	Producer      string    `json:"producer" db:"producer"`
	Owner         string    `json:"owner" db:"owner"`
	CarbonReduced int64     `json:"carbonReduced" db:"carbon_reduced"` // kg CO2
	ProjectType   string    `json:"projectType" db:"project_type"`
	IoTDeviceID   string    `json:"iotDeviceId" db:"iot_device_id"`
	IsVerified    bool      `json:"isVerified" db:"is_verified"`
	Price         int64     `json:"price" db:"price"` // 0 means not for sale
	ForSale       bool      `json:"forSale" db:"for_sale"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Clone returns a copy so callers can't mutate ledger-held state.
func (c *CarbonCredit) Clone() *CarbonCredit {
	dup := *c
	return &dup
}
