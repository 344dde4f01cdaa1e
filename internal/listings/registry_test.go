package listings_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bechedin/internal/listings"
	"bechedin/internal/models"
)

func setupRegistry(t *testing.T) *listings.Registry {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := db.AutoMigrate(&models.Listing{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return listings.NewRegistry(db)
}

func newListing(t *testing.T, r *listings.Registry) *models.Listing {
	t.Helper()
	listing := &models.Listing{SellerID: "seller-1", Title: "Walkman", Price: 2500}
	require.NoError(t, r.Create(context.Background(), listing))
	return listing
}

func TestCreateDefaultsToActive(t *testing.T) {
	r := setupRegistry(t)
	listing := newListing(t, r)

	assert.NotEmpty(t, listing.ID)
	got, err := r.Get(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, got.Availability)
}

func TestLockOnlyOnce(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()
	listing := newListing(t, r)

	require.NoError(t, r.Lock(ctx, listing.ID))

	err := r.Lock(ctx, listing.ID)
	assert.ErrorIs(t, err, listings.ErrUnavailable)
}

func TestLockUnknownListing(t *testing.T) {
	r := setupRegistry(t)

	err := r.Lock(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()
	listing := newListing(t, r)

	require.NoError(t, r.Lock(ctx, listing.ID))
	require.NoError(t, r.Release(ctx, listing.ID))

	// A retried rollback after a crash must not fail
	require.NoError(t, r.Release(ctx, listing.ID))

	got, err := r.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, got.Availability)
}

func TestMarkSoldRequiresPending(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()
	listing := newListing(t, r)

	err := r.MarkSold(ctx, listing.ID)
	assert.ErrorIs(t, err, listings.ErrUnavailable)

	require.NoError(t, r.Lock(ctx, listing.ID))
	require.NoError(t, r.MarkSold(ctx, listing.ID))
	require.NoError(t, r.MarkSold(ctx, listing.ID)) // idempotent

	got, err := r.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, got.Availability)

	// A sold listing can never be locked again
	assert.ErrorIs(t, r.Lock(ctx, listing.ID), listings.ErrUnavailable)
}

func TestListActive(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	first := newListing(t, r)
	_ = newListing(t, r)
	require.NoError(t, r.Lock(ctx, first.ID))

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
