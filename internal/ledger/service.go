package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pocketledger/pocketledger/internal/logging"
	"github.com/pocketledger/pocketledger/internal/notification"
)

const defaultUpdateRetries = 3

// Service keeps every wallet balance equal to the sum of its transactions
// while transactions are created, changed and deleted.
type Service struct {
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
	retries  int
	now      func() time.Time
	newID    func() string
}

// NewService builds the ledger service. notifier and logger may be nil.
func NewService(store Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		retries:  defaultUpdateRetries,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetUpdateRetries bounds the optimistic retries used by stores without
// transactions when an update or delete loses a race.
func (s *Service) SetUpdateRetries(n int) {
	if n < 1 {
		n = 1
	}
	s.retries = n
}

// Verify reports whether walletID exists and belongs to ownerID.
func (s *Service) Verify(ctx context.Context, walletID, ownerID string) (bool, error) {
	return ownsWallet(ctx, s.store, walletID, ownerID)
}

func (s *Service) txStore() (TxStore, bool) {
	txs, ok := s.store.(TxStore)
	return txs, ok
}

func (s *Service) publish(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	msg.OccurredAt = s.now().UTC()
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("publish ledger event", "kind", msg.Kind, "error", err)
	}
}

// partialFailure records a half-applied mutation and returns it unchanged.
func (s *Service) partialFailure(ctx context.Context, ownerID string, pf *PartialFailureError) error {
	s.logger.Error("ledger partial failure",
		"op", pf.Op,
		"completed", pf.Completed,
		"failed", pf.Failed,
		"wallet_id", pf.WalletID,
		"owner_id", ownerID,
		"error", pf.Err,
	)
	s.publish(ctx, notification.Message{
		Kind:     notification.KindPartialFailure,
		OwnerID:  ownerID,
		WalletID: pf.WalletID,
		Body:     pf.Error(),
	})
	return pf
}
