package services

import (
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"

	"bechedin/internal/config"
	"bechedin/internal/models"
)

// Notifier emails escrow lifecycle events to the operations inbox. Party
// identities come from the auth provider, so party-facing mail is out of
// scope here; the ops inbox drives payout execution and dispute triage.
// Send failures are logged and never block a transition.
type Notifier struct {
	client *resend.Client
	from   string
	to     string
}

func NewNotifier(cfg config.Config) *Notifier {
	n := &Notifier{from: cfg.EmailFrom, to: cfg.NotifyEmail}
	if cfg.ResendAPIKey != "" && cfg.NotifyEmail != "" {
		n.client = resend.NewClient(cfg.ResendAPIKey)
	} else {
		log.Println("Notifier running in log-only mode (RESEND_API_KEY or NOTIFY_EMAIL not set)")
	}
	return n
}

var eventSubjects = map[string]string{
	"funds_held": "Funds held — seller should ship",
	"in_transit": "Parcel picked up by courier",
	"delivered":  "Parcel delivered — inspection window open",
	"released":   "Funds released to seller",
	"disputed":   "Buyer rejected — dispute opened",
	"refunded":   "Transaction refunded to buyer",
	"cancelled":  "Transaction cancelled",
}

// TransactionEvent satisfies escrow.Notifier.
func (n *Notifier) TransactionEvent(txn *models.EscrowTransaction, event string) {
	subject, ok := eventSubjects[event]
	if !ok {
		subject = "Escrow event: " + event
	}
	subject = fmt.Sprintf("[Bechedin escrow %s] %s", txn.ID, subject)

	body := fmt.Sprintf(
		"<p>Transaction <strong>%s</strong> is now <strong>%s</strong>.</p>"+
			"<p>Listing: %s<br>Buyer: %s<br>Seller: %s<br>Amount: %d (platform fee %d)</p>",
		txn.ID, txn.Status, txn.ListingID, txn.BuyerID, txn.SellerID, txn.Amount, txn.PlatformFee,
	)

	if n.client == nil {
		log.Printf("[notify] %s", subject)
		return
	}

	_, err := n.client.Emails.Send(&resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		log.Printf("[notify] failed to send %q for %s: %v", event, txn.ID, err)
	}
}
