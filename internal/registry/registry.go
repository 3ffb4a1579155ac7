// Package registry binds live transport sessions to identities. An
// identity may be held by at most one live session at a time; the
// in-use check and the bind are a single step under the engine lock.
package registry

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/terminal-bench/minepool/internal/ledger"
)

// ErrIdentityInUse is returned when another live session already holds
// the identity. The existing binding is left untouched.
var ErrIdentityInUse = errors.New("identity already in use by another session")

// Registry tracks session ↔ identity bindings. The accounts themselves
// (including the live flag) belong to the ledger; the registry only
// keeps the session → identity back-reference for disconnect cleanup.
type Registry struct {
	ledger    *ledger.Ledger
	bySession map[uuid.UUID]string
}

// New returns a registry over the given ledger.
func New(l *ledger.Ledger) *Registry {
	return &Registry{
		ledger:    l,
		bySession: make(map[uuid.UUID]string),
	}
}

// Bind attaches session to identity, creating the account on first
// registration. It reports whether this was a reconnect of a previously
// seen identity. Binding fails with ErrIdentityInUse when a different
// live session holds the identity.
func (r *Registry) Bind(identity string, session uuid.UUID) (reconnect bool, err error) {
	acct := r.ledger.Ensure(identity)
	if acct.Live && acct.Session != session {
		return false, ErrIdentityInUse
	}
	reconnect = !acct.Live && acct.Session != uuid.Nil
	acct.Session = session
	acct.Live = true
	r.bySession[session] = identity
	return reconnect, nil
}

// Unbind clears the live binding for whatever identity the session
// holds. The balance is untouched. Unbinding an unknown session is a
// no-op.
func (r *Registry) Unbind(session uuid.UUID) (identity string, ok bool) {
	identity, ok = r.bySession[session]
	if !ok {
		return "", false
	}
	delete(r.bySession, session)
	if acct := r.ledger.Ensure(identity); acct.Live && acct.Session == session {
		acct.Live = false
	}
	return identity, true
}

// Identity resolves a session to its bound identity.
func (r *Registry) Identity(session uuid.UUID) (string, bool) {
	identity, ok := r.bySession[session]
	return identity, ok
}

// Live returns the identities with a live binding, sorted so that a
// draw over the snapshot is deterministic for a given pick index.
func (r *Registry) Live() []string {
	out := make([]string, 0, len(r.bySession))
	for _, identity := range r.bySession {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

// ActiveCount reports the number of live bindings.
func (r *Registry) ActiveCount() int {
	return len(r.bySession)
}
