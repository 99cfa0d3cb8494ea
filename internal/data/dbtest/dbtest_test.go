package dbtest

import (
	"context"
	"testing"

	db "github.com/rmachado/ledger/internal/data/dbsql/pgx"
)

func TestNewUnit(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := NewUnit(t, WithMigrations())
	t.Cleanup(teardown)
	log.Info("Hello")

	if err := db.StatusCheck(ctx, database); err != nil {
		t.Fatal(err)
	}
}

func TestNewRedis(t *testing.T) {
	ctx := context.Background()
	client := NewRedis(t)

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}
}
