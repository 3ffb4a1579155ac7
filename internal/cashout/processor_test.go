package cashout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/minepool/internal/announce"
	"github.com/terminal-bench/minepool/internal/engine"
	"github.com/terminal-bench/minepool/internal/ledger"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]PendingCashout
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[uuid.UUID]PendingCashout)}
}

func (s *memoryStore) Put(_ context.Context, p PendingCashout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.RequestID] = p
	return nil
}

func (s *memoryStore) Remove(_ context.Context, id uuid.UUID) (PendingCashout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	delete(s.items, id)
	return p, ok, nil
}

func (s *memoryStore) List(_ context.Context) ([]PendingCashout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingCashout, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	return out, nil
}

type approvalRecorder struct {
	mu   sync.Mutex
	reqs []announce.ApprovalRequest
	done chan struct{}
}

func (a *approvalRecorder) AnnounceBlock(ledger.AwardRecord) error { return nil }

func (a *approvalRecorder) RequestApproval(req announce.ApprovalRequest) error {
	a.mu.Lock()
	a.reqs = append(a.reqs, req)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func newFundedEngine(t *testing.T, session uuid.UUID, micro int64) *engine.Engine {
	t.Helper()
	eng := engine.New(engine.Config{InitialReward: micro, DecayStep: 0})
	_, err := eng.Register("W1", session)
	require.NoError(t, err)
	if micro > 0 {
		_, ok := eng.DrawBlock(func(int) int { return 0 })
		require.True(t, ok)
	}
	return eng
}

func TestRequest(t *testing.T) {
	t.Run("debits and files an approval request", func(t *testing.T) {
		session := uuid.New()
		eng := newFundedEngine(t, session, 10_000_000)
		store := newMemoryStore()
		announcer := &approvalRecorder{done: make(chan struct{}, 1)}
		p := NewProcessor(eng, announcer, store, nil, zerolog.Nop())

		receipt, err := p.Request(context.Background(), session, decimal.NewFromInt(4))

		require.NoError(t, err)
		assert.Equal(t, "W1", receipt.Identity)
		assert.Equal(t, int64(4_000_000), receipt.Amount)
		assert.Equal(t, int64(6_000_000), receipt.Remaining)

		pending, err := store.List(context.Background())
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, receipt.RequestID, pending[0].RequestID)
		assert.Equal(t, 4.0, pending[0].Amount)

		select {
		case <-announcer.done:
		case <-time.After(2 * time.Second):
			t.Fatal("approval request never announced")
		}
		assert.Equal(t, receipt.RequestID, announcer.reqs[0].RequestID)
	})

	t.Run("rejects overdraw without touching the balance", func(t *testing.T) {
		session := uuid.New()
		eng := newFundedEngine(t, session, 6_000_000)
		p := NewProcessor(eng, announce.Nop{}, newMemoryStore(), nil, zerolog.Nop())

		_, err := p.Request(context.Background(), session, decimal.NewFromInt(7))

		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		balance, err := eng.Balance(session)
		require.NoError(t, err)
		assert.Equal(t, int64(6_000_000), balance)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		session := uuid.New()
		eng := newFundedEngine(t, session, 10_000_000)
		p := NewProcessor(eng, announce.Nop{}, newMemoryStore(), nil, zerolog.Nop())

		_, err := p.Request(context.Background(), session, decimal.Zero)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

		_, err = p.Request(context.Background(), session, decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})

	t.Run("floors sub-micro fractions to zero and rejects them", func(t *testing.T) {
		session := uuid.New()
		eng := newFundedEngine(t, session, 10_000_000)
		p := NewProcessor(eng, announce.Nop{}, newMemoryStore(), nil, zerolog.Nop())

		amount, err := decimal.NewFromString("0.0000004")
		require.NoError(t, err)

		_, err = p.Request(context.Background(), session, amount)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})

	t.Run("ignores unregistered sessions", func(t *testing.T) {
		eng := engine.New(engine.Config{InitialReward: 0, DecayStep: 0})
		p := NewProcessor(eng, announce.Nop{}, newMemoryStore(), nil, zerolog.Nop())

		_, err := p.Request(context.Background(), uuid.New(), decimal.NewFromInt(1))
		assert.ErrorIs(t, err, engine.ErrNotRegistered)

		// Even with a non-positive amount the caller learns only that
		// the session is unregistered.
		_, err = p.Request(context.Background(), uuid.New(), decimal.Zero)
		assert.ErrorIs(t, err, engine.ErrNotRegistered)
	})

	t.Run("fractional token amounts convert exactly", func(t *testing.T) {
		session := uuid.New()
		eng := newFundedEngine(t, session, 10_000_000)
		p := NewProcessor(eng, announce.Nop{}, newMemoryStore(), nil, zerolog.Nop())

		amount, err := decimal.NewFromString("2.5")
		require.NoError(t, err)

		receipt, err := p.Request(context.Background(), session, amount)
		require.NoError(t, err)
		assert.Equal(t, int64(2_500_000), receipt.Amount)
		assert.Equal(t, int64(7_500_000), receipt.Remaining)
	})
}
