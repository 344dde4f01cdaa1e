package escrow_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bechedin/internal/database"
	"bechedin/internal/escrow"
	"bechedin/internal/listings"
	"bechedin/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupEngine(t *testing.T) (*escrow.Engine, *listings.Registry, *gorm.DB, *fakeClock) {
	t.Helper()
	db := setupDB(t)
	registry := listings.NewRegistry(db)
	clock := &fakeClock{now: time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)}
	engine := escrow.NewEngine(db, registry, 5, 72*time.Hour).WithClock(clock.Now)
	return engine, registry, db, clock
}

func seedListing(t *testing.T, registry *listings.Registry, sellerID string, price int64) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		SellerID: sellerID,
		Title:    "Game Boy Color",
		Price:    price,
	}
	require.NoError(t, registry.Create(context.Background(), listing))
	return listing
}

func TestLifecycleAccept(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowInitialized, txn.Status)
	assert.Equal(t, int64(5000), txn.Amount)
	assert.Equal(t, int64(250), txn.PlatformFee)
	assert.Equal(t, "seller-456", txn.SellerID)
	assert.Nil(t, txn.InspectionEndsAt)

	// Listing locked by initiation
	lst, err := registry.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, lst.Availability)

	txn, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFundsHeld, txn.Status)

	txn, err = engine.RecordCourierPickup(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowInTransit, txn.Status)

	clock.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txn, err = engine.RecordDelivery(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowInspecting, txn.Status)
	require.NotNil(t, txn.InspectionEndsAt)
	assert.Equal(t, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC), txn.InspectionEndsAt.UTC())

	clock.now = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	txn, err = engine.Resolve(ctx, txn.ID, escrow.ActionAccept, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, txn.Status)
	assert.True(t, txn.Status.Terminal())

	lst, err = registry.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, lst.Availability)
}

func TestInitiateUnknownListing(t *testing.T) {
	engine, _, _, _ := setupEngine(t)

	_, err := engine.Initiate(context.Background(), uuid.NewString(), "buyer-1")
	assert.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestInitiateListingAlreadyLocked(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	_, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	_, err = engine.Initiate(ctx, listing.ID, "buyer-2")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestInitiateSoldListing(t *testing.T) {
	engine, registry, db, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	require.NoError(t, db.Model(&models.Listing{}).
		Where("id = ?", listing.ID).
		Update("availability", models.ListingSold).Error)

	_, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestInitiateOwnListing(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	listing := seedListing(t, registry, "seller-456", 5000)

	_, err := engine.Initiate(context.Background(), listing.ID, "seller-456")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestFeeSnapshotSurvivesPriceChange(t *testing.T) {
	engine, registry, db, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Listing{}).
		Where("id = ?", listing.ID).
		Update("price", 9000).Error)

	got, err := engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Amount)
	assert.Equal(t, int64(250), got.PlatformFee)
}

func TestDoubleConfirmPayment(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	_, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)

	_, err = engine.ConfirmPayment(ctx, txn.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	got, err := engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFundsHeld, got.Status)
}

func TestDeliveryBeforePickup(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)
	_, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)

	// Delivery webhook arriving before pickup must be rejected
	_, err = engine.RecordDelivery(ctx, txn.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	got, err := engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFundsHeld, got.Status)
	assert.Nil(t, got.InspectionEndsAt)
}

func TestSecondDeliveryDoesNotMoveDeadline(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)
	txn := driveToInspecting(t, engine, listing.ID, clock)

	first := *txn.InspectionEndsAt

	clock.now = clock.now.Add(6 * time.Hour)
	_, err := engine.RecordDelivery(ctx, txn.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	got, err := engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.InspectionEndsAt)
	assert.True(t, got.InspectionEndsAt.Equal(first))
}

func TestRejectBeforeDeadlineDisputes(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)
	txn := driveToInspecting(t, engine, listing.ID, clock)

	clock.now = clock.now.Add(24 * time.Hour)
	txn, err := engine.Resolve(ctx, txn.ID, escrow.ActionReject, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowDisputed, txn.Status)

	// Listing stays locked pending manual resolution
	lst, err := registry.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, lst.Availability)
}

func TestRejectPastDeadlineReleases(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)
	txn := driveToInspecting(t, engine, listing.ID, clock)

	// Past the deadline a rejection is treated like silence.
	clock.now = txn.InspectionEndsAt.Add(24 * time.Hour)
	txn, err := engine.Resolve(ctx, txn.ID, escrow.ActionReject, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, txn.Status)

	lst, err := registry.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, lst.Availability)
}

func TestResolveOutsideInspecting(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	_, err = engine.Resolve(ctx, txn.ID, escrow.ActionAccept, "buyer-1")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestResolveByNonBuyer(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	listing := seedListing(t, registry, "seller-456", 5000)
	txn := driveToInspecting(t, engine, listing.ID, clock)

	_, err := engine.Resolve(context.Background(), txn.ID, escrow.ActionAccept, "seller-456")
	assert.ErrorIs(t, err, escrow.ErrForbidden)
}

func TestCancelUnpaid(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	txn, err = engine.Cancel(ctx, txn.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowCancelled, txn.Status)

	lst, err := registry.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, lst.Availability)
}

func TestCancelPaidRefunds(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)
	_, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)

	txn, err = engine.Cancel(ctx, txn.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowRefunded, txn.Status)

	lst, err := registry.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, lst.Availability)
}

func TestCancelAfterShipment(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)
	_, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)
	_, err = engine.RecordCourierPickup(ctx, txn.ID)
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, txn.ID, "buyer-1")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestAttachPaymentRefAndTrackingHandle(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	txn, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	txn, err = engine.AttachPaymentRef(ctx, txn.ID, "BDIN_test_1")
	require.NoError(t, err)
	assert.Equal(t, "BDIN_test_1", txn.PaymentRef)
	assert.Equal(t, models.EscrowInitialized, txn.Status)

	// Tracking handle only attaches once funds are held
	_, err = engine.AttachTrackingHandle(ctx, txn.ID, "PTH-1")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	_, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)

	txn, err = engine.AttachTrackingHandle(ctx, txn.ID, "PTH-1")
	require.NoError(t, err)
	assert.Equal(t, "PTH-1", txn.TrackingHandle)
}

func TestListByUser(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()

	first := seedListing(t, registry, "seller-456", 5000)
	second := seedListing(t, registry, "buyer-1", 3000)

	_, err := engine.Initiate(ctx, first.ID, "buyer-1")
	require.NoError(t, err)
	_, err = engine.Initiate(ctx, second.ID, "someone-else")
	require.NoError(t, err)

	asBuyer, err := engine.ListByUser(ctx, "buyer-1", "buyer")
	require.NoError(t, err)
	assert.Len(t, asBuyer, 1)

	asSeller, err := engine.ListByUser(ctx, "buyer-1", "seller")
	require.NoError(t, err)
	assert.Len(t, asSeller, 1)

	either, err := engine.ListByUser(ctx, "buyer-1", "")
	require.NoError(t, err)
	assert.Len(t, either, 2)
}

// driveToInspecting walks a fresh transaction through payment, pickup and
// delivery, returning it in INSPECTING with the deadline set.
func driveToInspecting(t *testing.T, engine *escrow.Engine, listingID string, clock *fakeClock) *models.EscrowTransaction {
	t.Helper()
	ctx := context.Background()

	txn, err := engine.Initiate(ctx, listingID, "buyer-1")
	require.NoError(t, err)
	_, err = engine.ConfirmPayment(ctx, txn.ID)
	require.NoError(t, err)
	_, err = engine.RecordCourierPickup(ctx, txn.ID)
	require.NoError(t, err)
	txn, err = engine.RecordDelivery(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, txn.InspectionEndsAt)
	return txn
}
