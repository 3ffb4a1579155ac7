// Package ledger holds the in-memory accounts and the award history for
// the pool. Balances are int64 micro-tokens and live for the process
// lifetime only; a restart resets everything.
package ledger

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAmount is returned when a credit or debit amount is
	// outside the allowed range.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when a debit exceeds the
	// account balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Account is one ledger entry: the balance for an identity plus its
// live session binding. Session is meaningful only while Live is true;
// the balance survives disconnects.
type Account struct {
	Balance int64
	Session uuid.UUID
	Live    bool
}

// Ledger maps identities to accounts. It is plain data: callers are
// expected to serialize access (the engine holds the lock).
type Ledger struct {
	accounts map[string]*Account
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// Ensure returns the account for identity, creating it with a zero
// balance on first use. Accounts are never destroyed.
func (l *Ledger) Ensure(identity string) *Account {
	acct, ok := l.accounts[identity]
	if !ok {
		acct = &Account{}
		l.accounts[identity] = acct
	}
	return acct
}

// Credit adds amount micro-tokens to the identity's balance and returns
// the new balance. A zero amount is allowed (the block reward can decay
// to zero); a negative amount is ErrInvalidAmount.
func (l *Ledger) Credit(identity string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	acct := l.Ensure(identity)
	acct.Balance += amount
	return acct.Balance, nil
}

// Debit removes amount micro-tokens from the identity's balance and
// returns the new balance. The amount must be positive and no greater
// than the current balance, so balances never go negative.
func (l *Ledger) Debit(identity string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	acct, ok := l.accounts[identity]
	if !ok || acct.Balance < amount {
		return 0, ErrInsufficientBalance
	}
	acct.Balance -= amount
	return acct.Balance, nil
}

// Balance reports the identity's balance, or false if the identity has
// never registered.
func (l *Ledger) Balance(identity string) (int64, bool) {
	acct, ok := l.accounts[identity]
	if !ok {
		return 0, false
	}
	return acct.Balance, true
}
