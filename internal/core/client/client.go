// Package client implements the transaction-application engine: the
// only writer of client balances and the reader of statement snapshots.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmachado/ledger/internal/web"
)

// Set of errors for client API.
var (
	ErrNotFound           = errors.New("client not found")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidAmount      = errors.New("invalid transaction amount")
	ErrInvalidDescription = errors.New("invalid transaction description")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInternal           = errors.New("client internal error")
)

// statementSize is how many transactions a statement carries.
const statementSize = 5

// Store is used to persist client's data.
type Store interface {
	// ExecUnderTx executes the fn function under a read-write transaction.
	// If fn returns an error the transaction is rolled back and the error
	// is returned.
	ExecUnderTx(ctx context.Context, fn func(tx Store) error) error

	// ExecUnderSnapshotTx executes fn under a repeatable-read, read-only
	// transaction, so every read inside fn observes the same instant.
	ExecUnderSnapshotTx(ctx context.Context, fn func(tx Store) error) error

	QueryByID(ctx context.Context, clientID int) (Client, error)

	// QueryByIDForUpdate reads the client row holding its row lock until
	// the enclosing transaction ends. Must be called inside ExecUnderTx.
	QueryByIDForUpdate(ctx context.Context, clientID int) (Client, error)

	UpdateBalance(ctx context.Context, clientID int, balance int64) error
	AddTransaction(ctx context.Context, t Transaction) error
	QueryLastTransactions(ctx context.Context, clientID int, n int) ([]Transaction, error)
	QueryLimits(ctx context.Context) (map[int]int64, error)
}

// LimitCache resolves a client's credit limit without a store round trip.
// It is advisory only: a miss falls through to the store and the cached
// limit is never used for the credit check.
type LimitCache interface {
	Limit(ctx context.Context, clientID int) (int64, bool)
	Store(ctx context.Context, clientID int, limit int64)
}

// Locker serializes applies for a single client across service
// instances. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, clientID int) (unlock func() error, err error)
}

// Core deals with client's business logic.
type Core struct {
	store  Store
	cache  LimitCache
	locker Locker
}

type Option func(*Core)

// WithLimitCache enables the not-found fast path backed by cache.
func WithLimitCache(cache LimitCache) Option {
	return func(c *Core) { c.cache = cache }
}

// WithLocker makes applies take a cross-instance per-client lock before
// opening the store transaction.
func WithLocker(l Locker) Option {
	return func(c *Core) { c.locker = l }
}

func NewCore(store Store, opts ...Option) *Core {
	c := &Core{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddTransaction applies a credit or debit to the client's balance and
// records it in the ledger, both inside one store transaction. The
// client row stays locked from the balance read to the commit, so
// concurrent applies for the same client serialize while different
// clients proceed in parallel. A rejected apply leaves no trace.
func (c *Core) AddTransaction(ctx context.Context, clientID int, nt NewTransaction) (Client, error) {
	t := Transaction{
		ID:          uuid.New(),
		ClientID:    clientID,
		Amount:      nt.Amount,
		Kind:        nt.Kind,
		Description: nt.Description,
		PerformedAt: web.GetTime(ctx).Round(time.Microsecond),
	}
	if err := t.validate(); err != nil {
		return Client{}, err
	}

	if err := c.checkExists(ctx, clientID); err != nil {
		return Client{}, err
	}

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, clientID)
		if err != nil {
			return Client{}, fmt.Errorf("locking client %d: %w", clientID, err)
		}
		defer unlock()
	}

	var after Client
	fn := func(tx Store) error {
		cl, err := tx.QueryByIDForUpdate(ctx, clientID)
		if err != nil {
			return err
		}

		// The limit comes from the row read under the lock, never from
		// the cache.
		balance := cl.Balance + t.Amount
		if t.Kind == Debit {
			balance = cl.Balance - t.Amount
			if balance < -cl.Limit {
				return ErrInsufficientFunds
			}
		}

		if err := tx.AddTransaction(ctx, t); err != nil {
			return fmt.Errorf("adding transaction: %w", err)
		}
		if err := tx.UpdateBalance(ctx, clientID, balance); err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}

		after = cl
		after.Balance = balance
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Client{}, err
	}

	return after, nil
}

// Statement returns the client's balance, limit and last transactions
// as one consistent snapshot: both reads run inside a single
// repeatable-read transaction, so a concurrent apply is either fully
// visible in balance and history or in neither.
func (c *Core) Statement(ctx context.Context, clientID int) (Statement, error) {
	if err := c.checkExists(ctx, clientID); err != nil {
		return Statement{}, err
	}

	var st Statement
	fn := func(tx Store) error {
		cl, err := tx.QueryByID(ctx, clientID)
		if err != nil {
			return err
		}

		last, err := tx.QueryLastTransactions(ctx, clientID, statementSize)
		if err != nil {
			return fmt.Errorf("querying last transactions: %w", err)
		}

		st = Statement{
			Balance:          cl.Balance,
			Limit:            cl.Limit,
			AsOf:             web.GetTime(ctx),
			LastTransactions: last,
		}
		return nil
	}

	if err := c.store.ExecUnderSnapshotTx(ctx, fn); err != nil {
		return Statement{}, err
	}

	return st, nil
}

// QueryByID returns the client's current state.
func (c *Core) QueryByID(ctx context.Context, clientID int) (Client, error) {
	return c.store.QueryByID(ctx, clientID)
}

// WarmLimitCache loads every provisioned client's limit into the cache.
// Called once before serving traffic so the cache never starts stale.
func (c *Core) WarmLimitCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	limits, err := c.store.QueryLimits(ctx)
	if err != nil {
		return fmt.Errorf("querying limits: %w", err)
	}
	for id, limit := range limits {
		c.cache.Store(ctx, id, limit)
	}

	return nil
}

// checkExists answers the not-found fast path before any lock is taken.
// A cache hit is trusted to exist; a cache miss is re-validated against
// the store and backfilled. Without a cache the store transaction does
// the check itself.
func (c *Core) checkExists(ctx context.Context, clientID int) error {
	if c.cache == nil {
		return nil
	}
	if _, ok := c.cache.Limit(ctx, clientID); ok {
		return nil
	}

	cl, err := c.store.QueryByID(ctx, clientID)
	if err != nil {
		return err
	}
	c.cache.Store(ctx, clientID, cl.Limit)

	return nil
}

func (t Transaction) validate() error {
	switch {
	case t.ID.Variant() == uuid.Invalid:
		return ErrInternal
	case t.ClientID < 1:
		return ErrNotFound
	case t.Amount < 0:
		return ErrInvalidAmount
	case t.Kind != Credit && t.Kind != Debit:
		return ErrInvalidKind
	case len(t.Description) < 1 || len(t.Description) > 10:
		return ErrInvalidDescription
	}

	return nil
}
