package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/internal/registry"
)

func newTestEngine() *Engine {
	return New(Config{InitialReward: 10_000_000, DecayStep: 5})
}

func pickFirst(int) int { return 0 }

func TestRegister(t *testing.T) {
	t.Run("binds and returns state snapshot", func(t *testing.T) {
		e := newTestEngine()

		res, err := e.Register("W1", uuid.New())

		require.NoError(t, err)
		assert.False(t, res.Reconnect)
		assert.Equal(t, int64(0), res.Balance)
		assert.Empty(t, res.History)
		assert.Equal(t, 1, res.Active)
	})

	t.Run("rejects identity held by another live session", func(t *testing.T) {
		e := newTestEngine()
		_, err := e.Register("W1", uuid.New())
		require.NoError(t, err)

		_, err = e.Register("W1", uuid.New())

		assert.ErrorIs(t, err, registry.ErrIdentityInUse)
		assert.Equal(t, 1, e.ActiveCount())
	})

	t.Run("exactly one of two concurrent binds succeeds", func(t *testing.T) {
		e := newTestEngine()

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = e.Register("W1", uuid.New())
			}(i)
		}
		wg.Wait()

		var failures int
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, registry.ErrIdentityInUse)
				failures++
			}
		}
		assert.Equal(t, 1, failures)
		assert.Equal(t, 1, e.ActiveCount())
	})

	t.Run("reconnect preserves balance", func(t *testing.T) {
		e := newTestEngine()
		first := uuid.New()
		_, err := e.Register("W1", first)
		require.NoError(t, err)
		_, ok := e.DrawBlock(pickFirst)
		require.True(t, ok)

		_, _, ok = e.Disconnect(first)
		require.True(t, ok)

		res, err := e.Register("W1", uuid.New())
		require.NoError(t, err)
		assert.True(t, res.Reconnect)
		assert.Equal(t, int64(10_000_000), res.Balance)
		assert.Len(t, res.History, 1)
	})
}

func TestDisconnect(t *testing.T) {
	e := newTestEngine()
	session := uuid.New()
	e.Register("W1", session)
	e.Register("W2", uuid.New())

	identity, active, ok := e.Disconnect(session)

	assert.True(t, ok)
	assert.Equal(t, "W1", identity)
	assert.Equal(t, 1, active)

	// Idempotent.
	_, active, ok = e.Disconnect(session)
	assert.False(t, ok)
	assert.Equal(t, 1, active)
}

func TestDrawBlock(t *testing.T) {
	t.Run("first block matches the reward schedule", func(t *testing.T) {
		e := newTestEngine()
		e.Register("W1", uuid.New())

		rec, ok := e.DrawBlock(pickFirst)

		require.True(t, ok)
		assert.Equal(t, uint64(1), rec.Sequence)
		assert.Equal(t, "W1", rec.Winner)
		assert.Equal(t, int64(10_000_000), rec.Reward)
		assert.Equal(t, int64(10_000_000), rec.Balance)
		assert.Equal(t, int64(10_000_000), rec.TotalMinted)
		assert.Equal(t, int64(9_999_995), e.CurrentReward())
		assert.Equal(t, 1, e.HistoryLen())
	})

	t.Run("single live identity always wins", func(t *testing.T) {
		e := newTestEngine()
		e.Register("W1", uuid.New())

		for i := 0; i < 5; i++ {
			rec, ok := e.DrawBlock(pickFirst)
			require.True(t, ok)
			assert.Equal(t, "W1", rec.Winner)
			assert.Equal(t, uint64(i+1), rec.Sequence)
		}
		assert.Equal(t, int64(10_000_000-5*5), e.CurrentReward())
	})

	t.Run("empty live set changes nothing", func(t *testing.T) {
		e := newTestEngine()
		session := uuid.New()
		e.Register("W1", session)
		e.Disconnect(session)

		_, ok := e.DrawBlock(pickFirst)

		assert.False(t, ok)
		assert.Equal(t, int64(10_000_000), e.CurrentReward(), "reward is not decayed")
		assert.Equal(t, int64(0), e.TotalMinted())
		assert.Equal(t, 0, e.HistoryLen())
	})

	t.Run("reward floors at zero and blocks keep flowing", func(t *testing.T) {
		e := New(Config{InitialReward: 7, DecayStep: 5})
		e.Register("W1", uuid.New())

		rec, _ := e.DrawBlock(pickFirst)
		assert.Equal(t, int64(7), rec.Reward)
		assert.Equal(t, int64(2), e.CurrentReward())

		rec, _ = e.DrawBlock(pickFirst)
		assert.Equal(t, int64(2), rec.Reward)
		assert.Equal(t, int64(0), e.CurrentReward())

		rec, ok := e.DrawBlock(pickFirst)
		require.True(t, ok)
		assert.Equal(t, int64(0), rec.Reward)
		assert.Equal(t, int64(0), e.CurrentReward(), "reward never goes negative")
		assert.Equal(t, int64(9), e.TotalMinted())
	})

	t.Run("picks from the sorted live snapshot", func(t *testing.T) {
		e := newTestEngine()
		e.Register("bob", uuid.New())
		e.Register("alice", uuid.New())

		rec, ok := e.DrawBlock(func(n int) int {
			require.Equal(t, 2, n)
			return 1
		})

		require.True(t, ok)
		assert.Equal(t, "bob", rec.Winner)
	})
}

func TestCashout(t *testing.T) {
	t.Run("debits the bound identity", func(t *testing.T) {
		e := newTestEngine()
		session := uuid.New()
		e.Register("W1", session)
		_, ok := e.DrawBlock(pickFirst) // W1 balance: 10,000,000
		require.True(t, ok)

		identity, remaining, err := e.Cashout(session, 4_000_000)

		require.NoError(t, err)
		assert.Equal(t, "W1", identity)
		assert.Equal(t, int64(6_000_000), remaining)

		// Over-draw fails and leaves the balance alone.
		_, _, err = e.Cashout(session, 7_000_000)
		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		balance, err := e.Balance(session)
		require.NoError(t, err)
		assert.Equal(t, int64(6_000_000), balance)
	})

	t.Run("unbound session is not registered", func(t *testing.T) {
		e := newTestEngine()

		_, _, err := e.Cashout(uuid.New(), 100)

		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestBalance(t *testing.T) {
	e := newTestEngine()
	session := uuid.New()

	_, err := e.Balance(session)
	assert.ErrorIs(t, err, ErrNotRegistered)

	e.Register("W1", session)
	balance, err := e.Balance(session)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}
