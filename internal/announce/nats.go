package announce

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/pkg/circuit"
	"github.com/terminal-bench/minepool/pkg/messaging"
	"github.com/terminal-bench/minepool/pkg/units"
)

// Subjects the external bridge listens and speaks on.
const (
	SubjectBlockMined       = "minepool.block.mined"
	SubjectCashoutRequested = "minepool.cashout.requested"
	SubjectCashoutApproved  = "minepool.cashout.approved"
)

// BlockAnnouncement is the published block result, in display tokens.
type BlockAnnouncement struct {
	Block       uint64  `json:"block"`
	Winner      string  `json:"winner"`
	Reward      float64 `json:"reward"`
	TotalMinted float64 `json:"totalMinted"`
}

// NATSAnnouncer publishes announcements to the bridge over NATS. A
// circuit breaker keeps a dead bridge from being hammered; rejected
// publishes are dropped, matching the no-retry contract.
type NATSAnnouncer struct {
	client  *messaging.Client
	breaker *circuit.Breaker
	log     zerolog.Logger
}

// NewNATSAnnouncer wraps the messaging client.
func NewNATSAnnouncer(client *messaging.Client, log zerolog.Logger) *NATSAnnouncer {
	return &NATSAnnouncer{
		client: client,
		breaker: circuit.NewBreaker(circuit.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		log: log,
	}
}

// AnnounceBlock publishes the block result.
func (a *NATSAnnouncer) AnnounceBlock(rec ledger.AwardRecord) error {
	return a.breaker.Execute(func() error {
		return a.client.Publish(SubjectBlockMined, BlockAnnouncement{
			Block:       rec.Sequence,
			Winner:      rec.Winner,
			Reward:      units.DisplayFloat(rec.Reward),
			TotalMinted: units.DisplayFloat(rec.TotalMinted),
		})
	})
}

// RequestApproval publishes a cashout approval request.
func (a *NATSAnnouncer) RequestApproval(req ApprovalRequest) error {
	return a.breaker.Execute(func() error {
		return a.client.Publish(SubjectCashoutRequested, req)
	})
}
