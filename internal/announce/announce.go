// Package announce models the external notification and approval
// channel. The pool publishes block results and cashout approval
// requests; a bridge outside this process forwards them to the chat
// channel and feeds button acknowledgements back. Every call is
// best-effort: failures are logged by callers and never undo ledger
// state.
package announce

import (
	"github.com/google/uuid"

	"github.com/terminal-bench/minepool/internal/ledger"
)

// ApprovalRequest asks an operator to pay out a cashout that has
// already been debited. Amount is in display tokens.
type ApprovalRequest struct {
	RequestID uuid.UUID `json:"requestId"`
	Identity  string    `json:"identity"`
	Amount    float64   `json:"amount"`
}

// Approval is the external acknowledgement that a cashout was handled.
type Approval struct {
	RequestID  uuid.UUID `json:"requestId"`
	ApprovedBy string    `json:"approvedBy"`
}

// Announcer is the capability the scheduler and cashout processor hold.
type Announcer interface {
	AnnounceBlock(rec ledger.AwardRecord) error
	RequestApproval(req ApprovalRequest) error
}

// Nop is an Announcer that discards everything; used when no bridge is
// configured and in tests.
type Nop struct{}

func (Nop) AnnounceBlock(ledger.AwardRecord) error { return nil }
func (Nop) RequestApproval(ApprovalRequest) error { return nil }
