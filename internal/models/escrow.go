package models

import (
	"time"
)

type EscrowStatus string

const (
	EscrowInitialized EscrowStatus = "INITIALIZED"
	EscrowFundsHeld   EscrowStatus = "FUNDS_HELD"
	EscrowInTransit   EscrowStatus = "IN_TRANSIT"
	EscrowInspecting  EscrowStatus = "INSPECTING"
	EscrowReleased    EscrowStatus = "RELEASED"
	EscrowDisputed    EscrowStatus = "DISPUTED"
	EscrowRefunded    EscrowStatus = "REFUNDED"
	EscrowCancelled   EscrowStatus = "CANCELLED"
)

// Terminal reports whether no further automated transition may leave s.
// DISPUTED counts as terminal: it waits for manual resolution.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowReleased, EscrowDisputed, EscrowRefunded, EscrowCancelled:
		return true
	}
	return false
}

// EscrowTransaction holds a buyer's payment in trust for a single listing
// until delivery and inspection resolve it. Amount and PlatformFee are
// snapshotted from the listing at initiation and never recomputed.
type EscrowTransaction struct {
	ID               string       `gorm:"primarykey;size:36" json:"id"`
	ListingID        string       `gorm:"size:36;not null;index" json:"listing_id"`
	BuyerID          string       `gorm:"size:64;not null;index" json:"buyer_id"`
	SellerID         string       `gorm:"size:64;not null;index" json:"seller_id"`
	Amount           int64        `gorm:"not null" json:"amount"`
	PlatformFee      int64        `gorm:"not null" json:"platform_fee"`
	Status           EscrowStatus `gorm:"type:varchar(20);not null;default:'INITIALIZED'" json:"status"`
	PaymentRef       string       `gorm:"size:64" json:"payment_ref,omitempty"`
	TrackingHandle   string       `gorm:"size:64" json:"tracking_handle,omitempty"`
	InspectionEndsAt *time.Time   `json:"inspection_ends_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (EscrowTransaction) TableName() string {
	return "escrow_transactions"
}
