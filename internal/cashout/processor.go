// Package cashout turns redemption requests into ledger debits and
// routes them to the external approval channel. The debit commits
// before the announcement is attempted and nothing on the approval path
// can refund it.
package cashout

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/minepool/internal/announce"
	"github.com/terminal-bench/minepool/internal/engine"
	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/internal/telemetry"
	"github.com/terminal-bench/minepool/pkg/units"
)

// Receipt describes a committed cashout.
type Receipt struct {
	RequestID uuid.UUID
	Identity  string
	Amount    int64 // micro-tokens debited
	Remaining int64 // balance after the debit
}

// Processor validates and executes cashout requests.
type Processor struct {
	engine    *engine.Engine
	announcer announce.Announcer
	pending   PendingStore
	metrics   *telemetry.Recorder
	log       zerolog.Logger
}

// NewProcessor wires the processor. pending may be nil when no store is
// configured; metrics may be nil.
func NewProcessor(eng *engine.Engine, ann announce.Announcer, pending PendingStore, metrics *telemetry.Recorder, log zerolog.Logger) *Processor {
	return &Processor{
		engine:    eng,
		announcer: ann,
		pending:   pending,
		metrics:   metrics,
		log:       log,
	}
}

// Request converts tokens to micro-tokens (flooring), debits the
// session's identity and files the approval request. Errors:
// engine.ErrNotRegistered when the session has no identity,
// ledger.ErrInvalidAmount when the floored amount is not positive,
// ledger.ErrInsufficientBalance when the balance is too small. On any
// error the ledger is unchanged.
func (p *Processor) Request(ctx context.Context, session uuid.UUID, tokens decimal.Decimal) (Receipt, error) {
	micro := units.ToMicro(tokens)
	if micro <= 0 {
		// Resolve the session first so unregistered clients are
		// ignored rather than sent an error, like every other path.
		if _, err := p.engine.Balance(session); err != nil {
			return Receipt{}, err
		}
		return Receipt{}, ledger.ErrInvalidAmount
	}

	identity, remaining, err := p.engine.Cashout(session, micro)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		RequestID: uuid.New(),
		Identity:  identity,
		Amount:    micro,
		Remaining: remaining,
	}

	p.log.Info().
		Str("identity", identity).
		Int64("amount_micro", micro).
		Int64("remaining_micro", remaining).
		Stringer("request_id", receipt.RequestID).
		Msg("cashout debited")

	p.filePending(ctx, receipt)
	p.metrics.CashoutRequested(identity, micro)

	// Fire and forget: the debit above is final whatever happens to
	// the announcement.
	go func() {
		err := p.announcer.RequestApproval(announce.ApprovalRequest{
			RequestID: receipt.RequestID,
			Identity:  identity,
			Amount:    units.DisplayFloat(micro),
		})
		if err != nil {
			p.log.Error().Err(err).
				Stringer("request_id", receipt.RequestID).
				Msg("cashout approval announcement failed")
		}
	}()

	return receipt, nil
}

func (p *Processor) filePending(ctx context.Context, receipt Receipt) {
	if p.pending == nil {
		return
	}
	err := p.pending.Put(ctx, PendingCashout{
		RequestID: receipt.RequestID,
		Identity:  receipt.Identity,
		Amount:    units.DisplayFloat(receipt.Amount),
	})
	if err != nil {
		p.log.Warn().Err(err).
			Stringer("request_id", receipt.RequestID).
			Msg("failed to record pending cashout")
	}
}
