package client

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the direction of a transaction.
type Kind string

const (
	Credit Kind = "credit"
	Debit  Kind = "debit"
)

type Client struct {
	ID      int
	Limit   int64
	Balance int64
}

// NewTransaction is the information needed to apply a transaction.
type NewTransaction struct {
	Amount      int64
	Kind        Kind
	Description string
}

// Transaction is an immutable ledger entry. The amount is stored as a
// magnitude, Kind carries the sign.
type Transaction struct {
	ID          uuid.UUID
	ClientID    int
	Amount      int64
	Kind        Kind
	Description string
	PerformedAt time.Time
}

// Statement is a consistent snapshot of a client's balance and recent
// history taken at AsOf.
type Statement struct {
	Balance          int64
	Limit            int64
	AsOf             time.Time
	LastTransactions []Transaction
}
