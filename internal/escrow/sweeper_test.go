package escrow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bechedin/internal/escrow"
	"bechedin/internal/models"
)

func TestSweepReleasesExpired(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	ctx := context.Background()

	expiredListing := seedListing(t, registry, "seller-456", 5000)
	freshListing := seedListing(t, registry, "seller-789", 7000)

	expired := driveToInspecting(t, engine, expiredListing.ID, clock)

	// Second transaction delivered two days later, still inside its window
	clock.now = clock.now.Add(48 * time.Hour)
	fresh := driveToInspecting(t, engine, freshListing.ID, clock)

	clock.now = expired.InspectionEndsAt.Add(time.Minute)
	released, err := engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	got, err := engine.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, got.Status)

	lst, err := registry.Get(ctx, expiredListing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, lst.Availability)

	got, err = engine.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowInspecting, got.Status)
}

func TestSweepIgnoresNonInspecting(t *testing.T) {
	engine, registry, _, _ := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)

	_, err := engine.Initiate(ctx, listing.ID, "buyer-1")
	require.NoError(t, err)

	released, err := engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestResolveAfterSweepIsNoOp(t *testing.T) {
	engine, registry, _, clock := setupEngine(t)
	ctx := context.Background()
	listing := seedListing(t, registry, "seller-456", 5000)
	txn := driveToInspecting(t, engine, listing.ID, clock)

	clock.now = txn.InspectionEndsAt.Add(time.Minute)
	released, err := engine.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	// The buyer's late rejection finds the release already done and is
	// answered with the released record, not an error.
	got, err := engine.Resolve(ctx, txn.ID, escrow.ActionReject, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, got.Status)

	// Sweeping again finds nothing to do
	released, err = engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	engine, _, _, _ := setupEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
