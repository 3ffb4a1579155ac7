package cashout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/minepool/internal/announce"
	"github.com/terminal-bench/minepool/pkg/messaging"
)

// Approvals consumes the external acknowledgements that operators send
// after paying a cashout out. An acknowledgement removes the pending
// record and leaves a completion log entry; it never touches the
// ledger.
type Approvals struct {
	client  *messaging.Client
	pending PendingStore
	log     zerolog.Logger
}

// NewApprovals wires the consumer.
func NewApprovals(client *messaging.Client, pending PendingStore, log zerolog.Logger) *Approvals {
	return &Approvals{client: client, pending: pending, log: log}
}

// Start subscribes to the approval subject. Handlers run on the NATS
// callback goroutine.
func (a *Approvals) Start() error {
	err := a.client.Subscribe(announce.SubjectCashoutApproved, a.handle)
	if err != nil {
		return fmt.Errorf("subscribe to approvals: %w", err)
	}
	return nil
}

func (a *Approvals) handle(msg *nats.Msg) {
	var appr announce.Approval
	if err := json.Unmarshal(msg.Data, &appr); err != nil {
		a.log.Warn().Err(err).Msg("malformed approval message")
		return
	}

	if a.pending == nil {
		a.log.Info().Stringer("request_id", appr.RequestID).
			Str("approved_by", appr.ApprovedBy).
			Msg("cashout approved (no pending store configured)")
		return
	}

	p, found, err := a.pending.Remove(context.Background(), appr.RequestID)
	if err != nil {
		a.log.Error().Err(err).
			Stringer("request_id", appr.RequestID).
			Msg("failed to clear pending cashout")
		return
	}
	if !found {
		a.log.Warn().Stringer("request_id", appr.RequestID).
			Msg("approval for unknown cashout request")
		return
	}

	a.log.Info().
		Stringer("request_id", p.RequestID).
		Str("identity", p.Identity).
		Float64("amount", p.Amount).
		Str("approved_by", appr.ApprovedBy).
		Msg("cashout completed")
}
