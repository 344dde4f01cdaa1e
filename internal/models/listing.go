package models

import (
	"time"
)

type ListingAvailability string

const (
	ListingActive  ListingAvailability = "ACTIVE"
	ListingPending ListingAvailability = "PENDING"
	ListingSold    ListingAvailability = "SOLD"
)

type Listing struct {
	ID           string              `gorm:"primarykey;size:36" json:"id"`
	SellerID     string              `gorm:"size:64;not null;index" json:"seller_id"`
	Title        string              `gorm:"size:255;not null" json:"title"`
	Description  string              `gorm:"type:text" json:"description,omitempty"`
	Price        int64               `gorm:"not null" json:"price"`
	Availability ListingAvailability `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"availability"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}
