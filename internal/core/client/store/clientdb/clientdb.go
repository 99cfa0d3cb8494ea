// Package clientdb persists client data in a PostgreSQL database.
package clientdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rmachado/ledger/internal/core/client"
	db "github.com/rmachado/ledger/internal/data/dbsql/pgx"
)

type Store struct {
	log *slog.Logger
	db  db.DB
}

func NewStore(log *slog.Logger, database db.DB) *Store {
	return &Store{
		log: log,
		db:  database,
	}
}

func (s *Store) ExecUnderTx(ctx context.Context, fn func(txStore client.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(NewStore(s.log, tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) ExecUnderSnapshotTx(ctx context.Context, fn func(txStore client.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Repeatable read pins both reads of the statement to one snapshot.
	const q = `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY`
	if _, err := tx.Exec(ctx, q); err != nil {
		return fmt.Errorf("setting transaction snapshot: %w", err)
	}

	if err := fn(NewStore(s.log, tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) QueryByID(ctx context.Context, clientID int) (client.Client, error) {
	data := struct {
		ID int `db:"id"`
	}{
		ID: clientID,
	}

	const q = `
	SELECT
		c.id,
		c.credit_limit,
		c.balance
	FROM
		clients AS c
	WHERE
		c.id = @id`

	c, err := db.NamedQueryStruct[dbClient](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return client.Client{}, client.ErrNotFound
		}
		return client.Client{}, err
	}

	return toClient(c), nil
}

func (s *Store) QueryByIDForUpdate(ctx context.Context, clientID int) (client.Client, error) {
	data := struct {
		ID int `db:"id"`
	}{
		ID: clientID,
	}

	const q = `
	SELECT
		c.id,
		c.credit_limit,
		c.balance
	FROM
		clients AS c
	WHERE
		c.id = @id
	FOR UPDATE`

	c, err := db.NamedQueryStruct[dbClient](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return client.Client{}, client.ErrNotFound
		}
		return client.Client{}, err
	}

	return toClient(c), nil
}

func (s *Store) UpdateBalance(ctx context.Context, clientID int, balance int64) error {
	data := struct {
		ID      int   `db:"id"`
		Balance int64 `db:"balance"`
	}{
		ID:      clientID,
		Balance: balance,
	}

	const q = `
	UPDATE clients SET
		balance = @balance
	WHERE
		id = @id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) AddTransaction(ctx context.Context, t client.Transaction) error {
	const q = `
	INSERT INTO transactions
		(id, client_id, amount, kind, description, performed_at)
	VALUES
		(@id, @client_id, @amount, @kind, @description, @performed_at)`

	return db.NamedExec(ctx, s.log, s.db, q, toDBTransaction(t))
}

func (s *Store) QueryLastTransactions(ctx context.Context, clientID int, n int) ([]client.Transaction, error) {
	data := struct {
		ClientID int `db:"client_id"`
		N        int `db:"n"`
	}{
		ClientID: clientID,
		N:        n,
	}

	// seq breaks ties between transactions committed on the same
	// microsecond.
	const q = `
	SELECT
		t.id,
		t.client_id,
		t.amount,
		t.kind,
		t.description,
		t.performed_at
	FROM
		transactions AS t
	WHERE
		t.client_id = @client_id
	ORDER BY
		t.performed_at DESC, t.seq DESC
	LIMIT @n`

	ts, err := db.NamedQuerySlice[dbTransaction](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	return toTransactions(ts), nil
}

func (s *Store) QueryLimits(ctx context.Context) (map[int]int64, error) {
	const q = `
	SELECT
		c.id,
		c.credit_limit
	FROM
		clients AS c`

	ls, err := db.NamedQuerySlice[dbClientLimit](ctx, s.log, s.db, q, struct{}{})
	if err != nil {
		return nil, err
	}

	limits := make(map[int]int64, len(ls))
	for _, l := range ls {
		limits[l.ID] = l.Limit
	}

	return limits, nil
}
