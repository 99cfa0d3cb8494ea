// Package distlock provides a per-client mutex backed by Redis. With a
// single service instance the database row lock already serializes
// applies; when several instances share one database the distributed
// mutex keeps lock waiters ordered instead of piling them up on the
// database. Locks are per client, there is no global lock.
package distlock

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

type Locker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// New creates a Locker on top of client. expiry bounds how long a
// crashed holder can keep a client locked.
func New(client *redis.Client, expiry time.Duration) *Locker {
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

// Lock acquires the mutex for clientID, blocking until it is granted or
// ctx is done. The returned function releases the mutex.
func (l *Locker) Lock(ctx context.Context, clientID int) (func() error, error) {
	mu := l.rs.NewMutex("ledger:client:"+strconv.Itoa(clientID),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(64),
	)

	if err := mu.LockContext(ctx); err != nil {
		return nil, err
	}

	unlock := func() error {
		_, err := mu.Unlock()
		return err
	}

	return unlock, nil
}
