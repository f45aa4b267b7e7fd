// Package notify is the notification sink contract. Delivery mechanics
// (push/email/SMS) are external; this package persists what should be sent.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foundpay/backend/internal/models"
)

// Notifier is the sink the scheduler sends expiry warnings to.
type Notifier interface {
	ExpiryWarning(ctx context.Context, userID, caseID uuid.UUID, caseTitle string, bounty decimal.Decimal, daysLeft int) error
}

// NotificationStore persists outbound notifications.
type NotificationStore interface {
	Create(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, kind, title, body string) error
}

// StoreNotifier writes notifications to the store for an external delivery
// system to pick up.
type StoreNotifier struct {
	Store NotificationStore
	Log   *slog.Logger
}

var _ Notifier = (*StoreNotifier)(nil)

func NewStoreNotifier(store NotificationStore, log *slog.Logger) *StoreNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &StoreNotifier{Store: store, Log: log}
}

func (n *StoreNotifier) ExpiryWarning(ctx context.Context, userID, caseID uuid.UUID, caseTitle string, bounty decimal.Decimal, daysLeft int) error {
	title := fmt.Sprintf("Your bounty expires in %d day(s)", daysLeft)
	body := fmt.Sprintf("The %s bounty on %q will be refunded automatically in %d day(s) unless the case is resolved.", bounty, caseTitle, daysLeft)
	if err := n.Store.Create(ctx, userID, &caseID, models.NotificationExpiryWarning, title, body); err != nil {
		return err
	}
	n.Log.Info("expiry warning queued", "user_id", userID, "case_id", caseID, "days_left", daysLeft)
	return nil
}
