package cashout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PendingCashout is a debited redemption awaiting external approval.
// It lives outside the ledger's transactional boundary: approving or
// losing it never changes a balance.
type PendingCashout struct {
	RequestID   uuid.UUID `json:"requestId"`
	Identity    string    `json:"identity"`
	Amount      float64   `json:"amount"` // display tokens
	RequestedAt time.Time `json:"requestedAt"`
}

// PendingStore tracks pending cashouts between the debit and the
// operator's acknowledgement.
type PendingStore interface {
	Put(ctx context.Context, p PendingCashout) error
	Remove(ctx context.Context, id uuid.UUID) (PendingCashout, bool, error)
	List(ctx context.Context) ([]PendingCashout, error)
}

const pendingKeyPrefix = "minepool:cashout:pending:"

// RedisStore keeps pending cashouts in Redis so operators can inspect
// the queue while the process runs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func pendingKey(id uuid.UUID) string {
	return pendingKeyPrefix + id.String()
}

// Put stores the pending cashout keyed by request ID.
func (s *RedisStore) Put(ctx context.Context, p PendingCashout) error {
	if p.RequestedAt.IsZero() {
		p.RequestedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending cashout: %w", err)
	}
	if err := s.client.Set(ctx, pendingKey(p.RequestID), data, 0).Err(); err != nil {
		return fmt.Errorf("store pending cashout: %w", err)
	}
	return nil
}

// Remove deletes and returns the pending cashout, reporting whether it
// existed.
func (s *RedisStore) Remove(ctx context.Context, id uuid.UUID) (PendingCashout, bool, error) {
	data, err := s.client.GetDel(ctx, pendingKey(id)).Bytes()
	if err == redis.Nil {
		return PendingCashout{}, false, nil
	}
	if err != nil {
		return PendingCashout{}, false, fmt.Errorf("remove pending cashout: %w", err)
	}
	var p PendingCashout
	if err := json.Unmarshal(data, &p); err != nil {
		return PendingCashout{}, false, fmt.Errorf("decode pending cashout: %w", err)
	}
	return p, true, nil
}

// List returns all pending cashouts.
func (s *RedisStore) List(ctx context.Context) ([]PendingCashout, error) {
	var out []PendingCashout
	iter := s.client.Scan(ctx, 0, pendingKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read pending cashout: %w", err)
		}
		var p PendingCashout
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode pending cashout: %w", err)
		}
		out = append(out, p)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan pending cashouts: %w", err)
	}
	return out, nil
}
