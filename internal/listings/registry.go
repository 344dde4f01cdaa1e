// Package listings is the registry of sellable items. The escrow engine
// consults it through Get and mutates availability only through Lock,
// Release and MarkSold; every flip is a conditional single-row update so a
// losing racer observes zero rows affected instead of clobbering state.
package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bechedin/internal/models"
)

// ErrUnavailable is returned when an availability flip finds the listing in
// the wrong state, e.g. locking a listing that is already PENDING or SOLD.
var ErrUnavailable = errors.New("listing is not available")

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// WithTx returns a registry bound to an open transaction, so availability
// flips can commit atomically with the escrow-record write that caused them.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx}
}

func (r *Registry) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.Availability == "" {
		listing.Availability = models.ListingActive
	}
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *Registry) Get(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListActive returns listings currently open for purchase, newest first.
func (r *Registry) ListActive(ctx context.Context) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.WithContext(ctx).
		Where("availability = ?", models.ListingActive).
		Order("created_at DESC").
		Find(&listings).Error
	return listings, err
}

// Lock flips ACTIVE -> PENDING. Fails with ErrUnavailable if the listing is
// not ACTIVE, which is also what a second concurrent initiation observes.
func (r *Registry) Lock(ctx context.Context, id string) error {
	return r.flip(ctx, id, models.ListingActive, models.ListingPending)
}

// Release flips PENDING -> ACTIVE. A listing already back to ACTIVE is
// treated as done, so a crashed-and-retried rollback is idempotent.
func (r *Registry) Release(ctx context.Context, id string) error {
	err := r.flip(ctx, id, models.ListingPending, models.ListingActive)
	if errors.Is(err, ErrUnavailable) {
		if current, getErr := r.Get(ctx, id); getErr == nil && current.Availability == models.ListingActive {
			return nil
		}
	}
	return err
}

// MarkSold flips PENDING -> SOLD, idempotent in the same way as Release.
func (r *Registry) MarkSold(ctx context.Context, id string) error {
	err := r.flip(ctx, id, models.ListingPending, models.ListingSold)
	if errors.Is(err, ErrUnavailable) {
		if current, getErr := r.Get(ctx, id); getErr == nil && current.Availability == models.ListingSold {
			return nil
		}
	}
	return err
}

func (r *Registry) flip(ctx context.Context, id string, from, to models.ListingAvailability) error {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND availability = ?", id, from).
		Update("availability", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing listing from one in the wrong state.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrUnavailable
	}
	return nil
}
