package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	// KindWalletCreated is emitted once a wallet (and its opening balance) is stored.
	KindWalletCreated = "wallet.created"
	// KindWalletDeleted is emitted after a cascade delete completed.
	KindWalletDeleted = "wallet.deleted"
	// KindTransactionCreated is emitted after a transaction and its balance delta are both applied.
	KindTransactionCreated = "transaction.created"
	// KindTransactionUpdated is emitted after a value or note change has been reconciled.
	KindTransactionUpdated = "transaction.updated"
	// KindTransactionDeleted is emitted after a transaction was removed and its effect reversed.
	KindTransactionDeleted = "transaction.deleted"
	// KindPartialFailure asks operators to reconcile a wallet by hand.
	KindPartialFailure = "ledger.partial_failure"
)

// Message describes a ledger event.
type Message struct {
	Kind          string    `json:"kind"`
	OwnerID       string    `json:"owner_id"`
	WalletID      string    `json:"wallet_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Body          string    `json:"body,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. It is used when no
// broker is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"owner_id", message.OwnerID,
		"wallet_id", message.WalletID,
		"transaction_id", message.TransactionID,
		"amount", message.Amount,
	)
	return nil
}

// Publisher is the subset of *nats.Conn used for fan-out.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes JSON-encoded messages on "<prefix>.<kind>".
type NATSNotifier struct {
	conn   Publisher
	prefix string
}

// NewNATSNotifier builds a notifier over an established NATS connection.
func NewNATSNotifier(conn Publisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = "ledger"
	}
	return &NATSNotifier{conn: conn, prefix: prefix}
}

// Subject returns the subject a message of the given kind is published on.
func (n *NATSNotifier) Subject(kind string) string {
	return n.prefix + "." + kind
}

// Send publishes the message. NATS publish is fire-and-forget, so ctx is only
// checked for cancellation before encoding.
func (n *NATSNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", message.Kind, err)
	}
	if err := n.conn.Publish(n.Subject(message.Kind), payload); err != nil {
		return fmt.Errorf("publish %s event: %w", message.Kind, err)
	}
	return nil
}
