package store

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound      = errors.New("transaction not found")
	ErrDuplicate     = errors.New("transaction already recorded")
	ErrTerminalState = errors.New("transaction is in a terminal state")
	ErrInvalidStatus = errors.New("invalid status transition")
)

// TransactionRecord tracks one validate-and-settle attempt.
type TransactionRecord struct {
	ID               string    `json:"id"`
	TransactionHash  string    `json:"transactionHash"`
	Status           Status    `json:"status"`
	Amount           string    `json:"amount"`
	PaymentMethod    string    `json:"paymentMethod"`
	RecipientAddress string    `json:"recipientAddress"`
	FromAddress      string    `json:"fromAddress,omitempty"`
	SettlementTx     string    `json:"settlementTx,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Update carries the fields written alongside a status transition.
// Empty fields leave the stored value unchanged.
type Update struct {
	FromAddress  string
	SettlementTx string
	Error        string
}

// Store persists transaction records keyed by transaction hash.
type Store interface {
	Create(ctx context.Context, rec *TransactionRecord) error
	Get(ctx context.Context, hash string) (*TransactionRecord, error)
	Transition(ctx context.Context, hash string, to Status, update Update) (*TransactionRecord, error)
	List(ctx context.Context, limit int) ([]TransactionRecord, error)
	Close() error
}

func checkTransition(from, to Status) error {
	if from.Terminal() {
		return ErrTerminalState
	}
	if !to.Terminal() {
		return ErrInvalidStatus
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
