// Package engine serializes every operation on the pool's mutable
// state. The ledger, the connection registry and the award history are
// plain data owned here; all access goes through Engine methods, which
// run whole operations under one mutex. A cashout and a block credit on
// the same identity therefore cannot interleave, and the bind-time
// in-use check is atomic with the bind itself.
package engine

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/internal/registry"
)

// ErrNotRegistered is returned when a session-scoped operation arrives
// from a session with no identity bound.
var ErrNotRegistered = errors.New("session has no registered identity")

// Config holds the reward schedule constants.
type Config struct {
	InitialReward int64 // micro-tokens granted by the first block
	DecayStep     int64 // micro-tokens removed from the reward per block
}

// Engine owns the pool state for the lifetime of the process.
type Engine struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	registry *registry.Registry
	history  *ledger.History
	reward   int64
	decay    int64
}

// New builds an engine with empty state and the given reward schedule.
func New(cfg Config) *Engine {
	l := ledger.New()
	return &Engine{
		ledger:   l,
		registry: registry.New(l),
		history:  ledger.NewHistory(),
		reward:   cfg.InitialReward,
		decay:    cfg.DecayStep,
	}
}

// RegisterResult is the state a freshly bound session needs to render:
// its balance, the full award history, and the live-session count to
// broadcast.
type RegisterResult struct {
	Reconnect bool
	Balance   int64
	History   []ledger.AwardRecord
	Active    int
}

// Register binds session to identity. It fails with
// registry.ErrIdentityInUse when another live session holds the
// identity, leaving that binding untouched.
func (e *Engine) Register(identity string, session uuid.UUID) (RegisterResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reconnect, err := e.registry.Bind(identity, session)
	if err != nil {
		return RegisterResult{}, err
	}
	balance, _ := e.ledger.Balance(identity)
	return RegisterResult{
		Reconnect: reconnect,
		Balance:   balance,
		History:   e.history.Records(),
		Active:    e.registry.ActiveCount(),
	}, nil
}

// Disconnect clears the session's binding, if any, preserving the
// balance. It returns the identity that was bound and the remaining
// live count.
func (e *Engine) Disconnect(session uuid.UUID) (identity string, active int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity, ok = e.registry.Unbind(session)
	return identity, e.registry.ActiveCount(), ok
}

// Balance reports the balance of the identity bound to session, or
// ErrNotRegistered.
func (e *Engine) Balance(session uuid.UUID) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity, ok := e.registry.Identity(session)
	if !ok {
		return 0, ErrNotRegistered
	}
	balance, _ := e.ledger.Balance(identity)
	return balance, nil
}

// Cashout debits amount micro-tokens from the session's identity. The
// debit either fully happens or the state is unchanged; the caller owns
// whatever follows (approval request, confirmation) and none of it can
// roll the debit back.
func (e *Engine) Cashout(session uuid.UUID, amount int64) (identity string, remaining int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity, ok := e.registry.Identity(session)
	if !ok {
		return "", 0, ErrNotRegistered
	}
	remaining, err = e.ledger.Debit(identity, amount)
	if err != nil {
		return identity, 0, err
	}
	return identity, remaining, nil
}

// DrawBlock runs one lottery tick: snapshot the live set, pick a winner
// with the supplied index function, credit the current reward, append
// the award record, then decay the reward (floored at zero). With no
// live identities nothing changes and ok is false — the reward is not
// decayed and no record is appended.
func (e *Engine) DrawBlock(pick func(n int) int) (rec ledger.AwardRecord, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := e.registry.Live()
	if len(live) == 0 {
		return ledger.AwardRecord{}, false
	}

	winner := live[pick(len(live))]
	balance, err := e.ledger.Credit(winner, e.reward)
	if err != nil {
		// Credit of a non-negative reward cannot fail; keep the
		// schedule untouched if it somehow does.
		return ledger.AwardRecord{}, false
	}
	rec = e.history.Append(winner, e.reward, balance)

	e.reward -= e.decay
	if e.reward < 0 {
		e.reward = 0
	}
	return rec, true
}

// ActiveCount reports the number of identities with a live session.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.ActiveCount()
}

// CurrentReward reports the reward the next non-empty block will grant.
func (e *Engine) CurrentReward() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reward
}

// TotalMinted reports the cumulative reward ever granted.
func (e *Engine) TotalMinted() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.TotalMinted()
}

// HistoryLen reports the number of blocks mined so far.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}
