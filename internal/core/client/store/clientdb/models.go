package clientdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/rmachado/ledger/internal/core/client"
)

type dbClient struct {
	ID      int   `db:"id"`
	Limit   int64 `db:"credit_limit"`
	Balance int64 `db:"balance"`
}

func toClient(c dbClient) client.Client {
	return client.Client{
		ID:      c.ID,
		Limit:   c.Limit,
		Balance: c.Balance,
	}
}

type dbClientLimit struct {
	ID    int   `db:"id"`
	Limit int64 `db:"credit_limit"`
}

// dbTransaction stores the amount as a magnitude, the kind column
// carries the sign.
type dbTransaction struct {
	ID          uuid.UUID `db:"id"`
	ClientID    int       `db:"client_id"`
	Amount      int64     `db:"amount"`
	Kind        string    `db:"kind"`
	Description string    `db:"description"`
	PerformedAt time.Time `db:"performed_at"`
}

func toDBTransaction(t client.Transaction) dbTransaction {
	return dbTransaction{
		ID:          t.ID,
		ClientID:    t.ClientID,
		Amount:      t.Amount,
		Kind:        string(t.Kind),
		Description: t.Description,
		PerformedAt: t.PerformedAt,
	}
}

func toTransactions(ts []dbTransaction) []client.Transaction {
	slice := make([]client.Transaction, len(ts))
	for i, t := range ts {
		slice[i] = toTransaction(t)
	}
	return slice
}

func toTransaction(t dbTransaction) client.Transaction {
	return client.Transaction{
		ID:          t.ID,
		ClientID:    t.ClientID,
		Amount:      t.Amount,
		Kind:        client.Kind(t.Kind),
		Description: t.Description,
		PerformedAt: t.PerformedAt,
	}
}
