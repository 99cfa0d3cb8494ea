package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rmachado/ledger/internal/core/client"
	"github.com/rmachado/ledger/internal/core/client/store/clientcache"
	"github.com/rmachado/ledger/internal/core/client/store/clientdb"
	"github.com/rmachado/ledger/internal/data/dbtest"
	"github.com/rmachado/ledger/internal/data/distlock"
)

func TestAddTransaction(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := client.NewCore(clientdb.NewStore(log, database))

	clientID := 2
	nt := client.NewTransaction{
		Amount:      100,
		Kind:        client.Debit,
		Description: "hello",
	}

	cret, err := core.AddTransaction(ctx, clientID, nt)
	if err != nil {
		t.Fatalf("adding transaction: %v", err)
	}

	c, err := core.QueryByID(ctx, clientID)
	if err != nil {
		t.Fatalf("failed to query clientID[%d]: %v", clientID, err)
	}

	if diff := cmp.Diff(cret, c); diff != "" {
		t.Fatalf("got different clients: %s", diff)
	}

	if c.Balance != -100 {
		t.Fatalf("got %d balance want %d", c.Balance, -100)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := client.NewCore(clientdb.NewStore(log, database))

	tests := []struct {
		name     string
		clientID int
		nt       client.NewTransaction
		wantErr  error
	}{
		{"bad kind", 1, client.NewTransaction{Amount: 1, Kind: "x", Description: "d"}, client.ErrInvalidKind},
		{"negative amount", 1, client.NewTransaction{Amount: -1, Kind: client.Credit, Description: "d"}, client.ErrInvalidAmount},
		{"empty description", 1, client.NewTransaction{Amount: 1, Kind: client.Credit, Description: ""}, client.ErrInvalidDescription},
		{"long description", 1, client.NewTransaction{Amount: 1, Kind: client.Credit, Description: "12345678901"}, client.ErrInvalidDescription},
		{"unknown client", 999, client.NewTransaction{Amount: 1, Kind: client.Credit, Description: "d"}, client.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.AddTransaction(ctx, tt.clientID, tt.nt)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v want %v", err, tt.wantErr)
			}
		})
	}

	// A rejected apply leaves no trace.
	st, err := core.Statement(ctx, 1)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}
	if st.Balance != 0 {
		t.Errorf("got balance %d want 0", st.Balance)
	}
	if len(st.LastTransactions) != 0 {
		t.Errorf("got %d transactions want 0", len(st.LastTransactions))
	}
}

func TestInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := client.NewCore(clientdb.NewStore(log, database))

	// Client 1 is seeded with limit 100000 and zero balance. Debit all
	// the way to the limit, then one unit more.
	clientID := 1
	c, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
		Amount:      100000,
		Kind:        client.Debit,
		Description: "loan",
	})
	if err != nil {
		t.Fatalf("adding transaction: %v", err)
	}
	if c.Balance != -100000 {
		t.Fatalf("got balance %d want %d", c.Balance, -100000)
	}

	_, err = core.AddTransaction(ctx, clientID, client.NewTransaction{
		Amount:      1,
		Kind:        client.Debit,
		Description: "x",
	})
	if !errors.Is(err, client.ErrInsufficientFunds) {
		t.Fatalf("got error %v want %v", err, client.ErrInsufficientFunds)
	}

	st, err := core.Statement(ctx, clientID)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}
	if st.Balance != -100000 {
		t.Errorf("got balance %d want %d", st.Balance, -100000)
	}
	if len(st.LastTransactions) != 1 {
		t.Errorf("got %d transactions want 1", len(st.LastTransactions))
	}
}

func TestConservation(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := client.NewCore(clientdb.NewStore(log, database))

	clientID := 3
	if _, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
		Amount:      500,
		Kind:        client.Credit,
		Description: "pay",
	}); err != nil {
		t.Fatalf("adding credit: %v", err)
	}

	c, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
		Amount:      500,
		Kind:        client.Debit,
		Description: "spend",
	})
	if err != nil {
		t.Fatalf("adding debit: %v", err)
	}
	if c.Balance != 0 {
		t.Fatalf("got balance %d want 0", c.Balance)
	}

	st, err := core.Statement(ctx, clientID)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}
	if len(st.LastTransactions) != 2 {
		t.Fatalf("got %d transactions want 2", len(st.LastTransactions))
	}
	if st.LastTransactions[0].Kind != client.Debit {
		t.Errorf("newest transaction should be the debit, got %q", st.LastTransactions[0].Kind)
	}
}

func TestConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := client.NewCore(clientdb.NewStore(log, database))

	// Client 1: limit 100000, balance 0. Ten concurrent debits of 30000
	// must give exactly 3 successes no matter the scheduling.
	const (
		clientID = 1
		n        = 10
		amount   = 30000
	)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
				Amount:      amount,
				Kind:        client.Debit,
				Description: "burst",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, denied int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, client.ErrInsufficientFunds):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if ok != 3 || denied != 7 {
		t.Fatalf("got %d successes and %d denials, want 3 and 7", ok, denied)
	}

	c, err := core.QueryByID(ctx, clientID)
	if err != nil {
		t.Fatalf("failed to query clientID[%d]: %v", clientID, err)
	}
	if c.Balance != -90000 {
		t.Fatalf("got balance %d want %d", c.Balance, -90000)
	}

	st, err := core.Statement(ctx, clientID)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}
	if len(st.LastTransactions) != 3 {
		t.Fatalf("got %d transactions want 3", len(st.LastTransactions))
	}
}

func TestStatement(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := client.NewCore(clientdb.NewStore(log, database))

	clientID := 4
	c, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
		Amount:      500,
		Kind:        client.Credit,
		Description: "pay",
	})
	if err != nil {
		t.Fatalf("adding transaction: %v", err)
	}

	st, err := core.Statement(ctx, clientID)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}

	if st.Balance != c.Balance {
		t.Errorf("got balance %d want %d", st.Balance, c.Balance)
	}
	if st.Limit != c.Limit {
		t.Errorf("got limit %d want %d", st.Limit, c.Limit)
	}
	if st.AsOf.IsZero() {
		t.Error("as-of instant should be set")
	}

	last := st.LastTransactions
	if len(last) != 1 {
		t.Fatalf("got %d transactions want 1", len(last))
	}
	if last[0].Amount != 500 || last[0].Kind != client.Credit || last[0].Description != "pay" {
		t.Errorf("wrong newest transaction: %+v", last[0])
	}

	// Fill the history beyond the statement size, the statement keeps
	// the newest five.
	for i := range 6 {
		if _, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
			Amount:      int64(i + 1),
			Kind:        client.Credit,
			Description: "more",
		}); err != nil {
			t.Fatalf("adding transaction: %v", err)
		}
	}

	st, err = core.Statement(ctx, clientID)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}
	if len(st.LastTransactions) != 5 {
		t.Fatalf("got %d transactions want 5", len(st.LastTransactions))
	}
	if st.LastTransactions[0].Amount != 6 {
		t.Errorf("got newest amount %d want 6", st.LastTransactions[0].Amount)
	}

	if _, err := core.Statement(ctx, 999); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("got error %v want %v", err, client.ErrNotFound)
	}
}

func TestCoreWithCacheAndLocker(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	rdb := dbtest.NewRedis(t)

	core := client.NewCore(clientdb.NewStore(log, database),
		client.WithLimitCache(clientcache.New(log, rdb, 0)),
		client.WithLocker(distlock.New(rdb, 8*time.Second)),
	)

	if err := core.WarmLimitCache(ctx); err != nil {
		t.Fatalf("warming limit cache: %v", err)
	}

	clientID := 5
	c, err := core.AddTransaction(ctx, clientID, client.NewTransaction{
		Amount:      250,
		Kind:        client.Credit,
		Description: "cached",
	})
	if err != nil {
		t.Fatalf("adding transaction: %v", err)
	}
	if c.Balance != 250 {
		t.Fatalf("got balance %d want 250", c.Balance)
	}

	if _, err := core.AddTransaction(ctx, 999, client.NewTransaction{
		Amount:      1,
		Kind:        client.Credit,
		Description: "ghost",
	}); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("got error %v want %v", err, client.ErrNotFound)
	}

	st, err := core.Statement(ctx, clientID)
	if err != nil {
		t.Fatalf("querying statement: %v", err)
	}
	if st.Balance != 250 {
		t.Errorf("got balance %d want 250", st.Balance)
	}
}
