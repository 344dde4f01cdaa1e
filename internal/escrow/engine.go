// Package escrow owns the transaction state machine:
//
//	INITIALIZED -> FUNDS_HELD -> IN_TRANSIT -> INSPECTING -> {RELEASED | DISPUTED}
//
// with REFUNDED and CANCELLED reachable from the pre-shipment states. Every
// mutation goes through a per-transaction mutex plus a DB transaction, so
// user calls, webhooks and the background sweeper all race cleanly: the
// first writer wins and the loser observes ErrInvalidState.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bechedin/internal/listings"
	"bechedin/internal/models"
)

const (
	ActionAccept = "ACCEPT"
	ActionReject = "REJECT"
)

// Notifier receives lifecycle events after a transition commits. Failures
// must be swallowed by the implementation; a notification never blocks or
// rolls back a transition.
type Notifier interface {
	TransactionEvent(txn *models.EscrowTransaction, event string)
}

type Engine struct {
	db       *gorm.DB
	registry *listings.Registry
	notifier Notifier

	feePercent int64
	window     time.Duration

	locks sync.Map // transaction id -> *sync.Mutex
	now   func() time.Time
}

func NewEngine(db *gorm.DB, registry *listings.Registry, feePercent int64, window time.Duration) *Engine {
	return &Engine{
		db:         db,
		registry:   registry,
		feePercent: feePercent,
		window:     window,
		now:        time.Now,
	}
}

// WithNotifier attaches a lifecycle notifier.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithClock overrides the engine's clock, used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// lock returns the mutex serializing transitions for one transaction id.
func (e *Engine) lock(id string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Initiate creates an INITIALIZED transaction for an ACTIVE listing, locking
// the listing to PENDING in the same DB transaction. Seller id, amount and
// platform fee are snapshotted from the listing at this instant.
func (e *Engine) Initiate(ctx context.Context, listingID, buyerID string) (*models.EscrowTransaction, error) {
	var txn *models.EscrowTransaction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg := e.registry.WithTx(tx)

		listing, err := reg.Get(ctx, listingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
			}
			return err
		}
		if listing.SellerID == buyerID {
			return fmt.Errorf("listing %s belongs to the buyer: %w", listingID, ErrInvalidState)
		}
		if err := reg.Lock(ctx, listingID); err != nil {
			if errors.Is(err, listings.ErrUnavailable) {
				return fmt.Errorf("listing %s is %s, not ACTIVE: %w", listingID, listing.Availability, ErrInvalidState)
			}
			return err
		}

		now := e.now()
		txn = &models.EscrowTransaction{
			ID:          uuid.NewString(),
			ListingID:   listingID,
			BuyerID:     buyerID,
			SellerID:    listing.SellerID,
			Amount:      listing.Price,
			PlatformFee: listing.Price * e.feePercent / 100,
			Status:      models.EscrowInitialized,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.Create(txn).Error
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ConfirmPayment moves INITIALIZED -> FUNDS_HELD once the gateway reported a
// valid charge. A duplicate gateway notification fails the state guard and
// is harmless.
func (e *Engine) ConfirmPayment(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	txn, err := e.transition(ctx, id, models.EscrowInitialized, models.EscrowFundsHeld, nil)
	if err != nil {
		return nil, err
	}
	e.notify(txn, "funds_held")
	return txn, nil
}

// RecordCourierPickup moves FUNDS_HELD -> IN_TRANSIT, driven by a courier
// webhook.
func (e *Engine) RecordCourierPickup(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	txn, err := e.transition(ctx, id, models.EscrowFundsHeld, models.EscrowInTransit, nil)
	if err != nil {
		return nil, err
	}
	e.notify(txn, "in_transit")
	return txn, nil
}

// RecordDelivery moves IN_TRANSIT -> INSPECTING and starts the inspection
// window. The deadline is set exactly once: a second delivery webhook fails
// the state guard and cannot move it.
func (e *Engine) RecordDelivery(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	txn, err := e.transition(ctx, id, models.EscrowInTransit, models.EscrowInspecting,
		func(tx *gorm.DB, txn *models.EscrowTransaction) error {
			deadline := e.now().Add(e.window)
			txn.InspectionEndsAt = &deadline
			return nil
		})
	if err != nil {
		return nil, err
	}
	e.notify(txn, "delivered")
	return txn, nil
}

// Resolve settles an INSPECTING transaction on the buyer's word. ACCEPT
// releases funds to the seller and marks the listing SOLD. REJECT inside
// the window opens a dispute; at or past the deadline a rejection is
// treated identically to silence and the funds are released. A call that
// finds the sweeper already released past the deadline returns the released
// record rather than an error.
func (e *Engine) Resolve(ctx context.Context, id, action, callerID string) (*models.EscrowTransaction, error) {
	mu := e.lock(id)
	mu.Lock()
	defer mu.Unlock()

	txn, err := e.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.BuyerID != callerID {
		return nil, fmt.Errorf("only the buyer may resolve transaction %s: %w", id, ErrForbidden)
	}

	expired := txn.InspectionEndsAt != nil && !e.now().Before(*txn.InspectionEndsAt)

	if txn.Status != models.EscrowInspecting {
		if txn.Status == models.EscrowReleased && expired {
			// Auto-release already settled it; a late call changes nothing.
			return txn, nil
		}
		return nil, fmt.Errorf("transaction %s is %s, not INSPECTING: %w", id, txn.Status, ErrInvalidState)
	}

	switch action {
	case ActionAccept:
		return e.releaseLocked(ctx, id)
	case ActionReject:
		if expired {
			return e.releaseLocked(ctx, id)
		}
		out, err := e.transitionLocked(ctx, id, models.EscrowInspecting, models.EscrowDisputed, nil)
		if err != nil {
			return nil, err
		}
		e.notify(out, "disputed")
		return out, nil
	default:
		return nil, fmt.Errorf("unknown resolve action %q: %w", action, ErrInvalidState)
	}
}

// Cancel lets the buyer abandon a pre-shipment transaction. An unpaid
// INITIALIZED transaction becomes CANCELLED; a paid FUNDS_HELD one becomes
// REFUNDED. Either way the listing goes back to ACTIVE in the same DB
// transaction.
func (e *Engine) Cancel(ctx context.Context, id, callerID string) (*models.EscrowTransaction, error) {
	mu := e.lock(id)
	mu.Lock()
	defer mu.Unlock()

	txn, err := e.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.BuyerID != callerID {
		return nil, fmt.Errorf("only the buyer may cancel transaction %s: %w", id, ErrForbidden)
	}

	var to models.EscrowStatus
	switch txn.Status {
	case models.EscrowInitialized:
		to = models.EscrowCancelled
	case models.EscrowFundsHeld:
		to = models.EscrowRefunded
	default:
		return nil, fmt.Errorf("transaction %s is %s, past the point of cancellation: %w", id, txn.Status, ErrInvalidState)
	}

	out, err := e.transitionLocked(ctx, id, txn.Status, to,
		func(tx *gorm.DB, txn *models.EscrowTransaction) error {
			return e.registry.WithTx(tx).Release(ctx, txn.ListingID)
		})
	if err != nil {
		return nil, err
	}
	if to == models.EscrowRefunded {
		e.notify(out, "refunded")
	} else {
		e.notify(out, "cancelled")
	}
	return out, nil
}

// AttachPaymentRef records the gateway transaction reference issued at
// checkout initiation. Only meaningful before payment is confirmed.
func (e *Engine) AttachPaymentRef(ctx context.Context, id, ref string) (*models.EscrowTransaction, error) {
	return e.transition(ctx, id, models.EscrowInitialized, models.EscrowInitialized,
		func(tx *gorm.DB, txn *models.EscrowTransaction) error {
			txn.PaymentRef = ref
			return nil
		})
}

// AttachTrackingHandle records the courier consignment id created for the
// parcel. Only valid while funds are held and the item has not shipped.
func (e *Engine) AttachTrackingHandle(ctx context.Context, id, handle string) (*models.EscrowTransaction, error) {
	return e.transition(ctx, id, models.EscrowFundsHeld, models.EscrowFundsHeld,
		func(tx *gorm.DB, txn *models.EscrowTransaction) error {
			txn.TrackingHandle = handle
			return nil
		})
}

// Get is a plain read. Absent transactions report ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	return e.getLocked(ctx, id)
}

// ListByUser returns transactions where the user is buyer, seller, or
// either, newest first.
func (e *Engine) ListByUser(ctx context.Context, userID, role string) ([]models.EscrowTransaction, error) {
	query := e.db.WithContext(ctx)
	switch role {
	case "buyer":
		query = query.Where("buyer_id = ?", userID)
	case "seller":
		query = query.Where("seller_id = ?", userID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}

	var txns []models.EscrowTransaction
	if err := query.Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (e *Engine) getLocked(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	var txn models.EscrowTransaction
	if err := e.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &txn, nil
}

// releaseLocked performs the INSPECTING -> RELEASED transition and marks the
// listing SOLD atomically. Caller must hold the transaction's mutex.
func (e *Engine) releaseLocked(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	txn, err := e.transitionLocked(ctx, id, models.EscrowInspecting, models.EscrowReleased,
		func(tx *gorm.DB, txn *models.EscrowTransaction) error {
			return e.registry.WithTx(tx).MarkSold(ctx, txn.ListingID)
		})
	if err != nil {
		return nil, err
	}
	e.notify(txn, "released")
	return txn, nil
}

type mutator func(tx *gorm.DB, txn *models.EscrowTransaction) error

// transition applies from -> to under the per-transaction mutex.
func (e *Engine) transition(ctx context.Context, id string, from, to models.EscrowStatus, mutate mutator) (*models.EscrowTransaction, error) {
	mu := e.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return e.transitionLocked(ctx, id, from, to, mutate)
}

// transitionLocked re-reads the record inside a DB transaction, checks the
// precondition, applies the mutation and writes, all-or-nothing. Caller
// must hold the transaction's mutex.
func (e *Engine) transitionLocked(ctx context.Context, id string, from, to models.EscrowStatus, mutate mutator) (*models.EscrowTransaction, error) {
	var out *models.EscrowTransaction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.EscrowTransaction
		if err := tx.First(&txn, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
			}
			return err
		}
		if txn.Status != from {
			return fmt.Errorf("transaction %s is %s, expected %s: %w", id, txn.Status, from, ErrInvalidState)
		}

		txn.Status = to
		txn.UpdatedAt = e.now()
		if mutate != nil {
			if err := mutate(tx, &txn); err != nil {
				return err
			}
		}
		if err := tx.Save(&txn).Error; err != nil {
			return err
		}
		out = &txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) notify(txn *models.EscrowTransaction, event string) {
	if e.notifier != nil {
		e.notifier.TransactionEvent(txn, event)
	}
}
