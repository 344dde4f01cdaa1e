package escrow

import (
	"context"
	"errors"
	"log"
	"time"

	"bechedin/internal/models"
)

// SweepExpired releases every transaction still INSPECTING past its
// inspection deadline and returns how many it moved. Each candidate goes
// through the same guarded transition path as a user's Resolve; losing the
// race to one simply skips the row.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	var ids []string
	err := e.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("status = ? AND inspection_ends_at <= ?", models.EscrowInspecting, e.now()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if _, err := e.autoRelease(ctx, id); err != nil {
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
				continue // a racing Resolve got there first
			}
			log.Printf("[sweep] transaction %s: %v", id, err)
			continue
		}
		released++
	}
	return released, nil
}

// RunSweeper drives SweepExpired on a fixed interval until ctx is cancelled.
// Run it in its own goroutine from main.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.SweepExpired(ctx)
			if err != nil {
				log.Printf("[sweep] %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[sweep] auto-released %d transaction(s)", n)
			}
		}
	}
}

// autoRelease is the timer-driven release of one expired transaction.
func (e *Engine) autoRelease(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	mu := e.lock(id)
	mu.Lock()
	defer mu.Unlock()

	txn, err := e.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.EscrowInspecting {
		return nil, ErrInvalidState
	}
	if txn.InspectionEndsAt == nil || e.now().Before(*txn.InspectionEndsAt) {
		return nil, ErrInvalidState
	}
	return e.releaseLocked(ctx, id)
}
