// Package lottery runs the periodic block draw. Every interval one
// live identity is picked uniformly at random, credited the current
// reward, and the result is broadcast and announced. Ticks with no live
// identities do nothing: no record, no reward decay.
package lottery

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/minepool/internal/announce"
	"github.com/terminal-bench/minepool/internal/engine"
	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/internal/telemetry"
)

// Broadcaster pushes a block result to every connected session. The
// gateway implements it.
type Broadcaster interface {
	BlockWon(rec ledger.AwardRecord)
}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration
}

// Scheduler owns the block timer. No session owns or cancels it; it
// stops only when its context is done.
type Scheduler struct {
	engine      *engine.Engine
	interval    time.Duration
	announcer   announce.Announcer
	broadcaster Broadcaster
	metrics     *telemetry.Recorder
	pick        func(n int) int
	log         zerolog.Logger
}

// NewScheduler wires the scheduler with a uniform random pick.
func NewScheduler(cfg Config, eng *engine.Engine, ann announce.Announcer, b Broadcaster, metrics *telemetry.Recorder, log zerolog.Logger) *Scheduler {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Scheduler{
		engine:      eng,
		interval:    cfg.Interval,
		announcer:   ann,
		broadcaster: b,
		metrics:     metrics,
		pick:        rng.Intn,
		log:         log,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("lottery scheduler started")

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			s.log.Info().Msg("lottery scheduler stopped")
			return ctx.Err()
		}
	}
}

// Tick runs one draw and reports whether a block was mined. The ledger
// mutation and history append commit inside the engine before anything
// is broadcast or announced.
func (s *Scheduler) Tick() (ledger.AwardRecord, bool) {
	rec, ok := s.engine.DrawBlock(s.pick)
	if !ok {
		s.log.Debug().Msg("no live identities, block skipped")
		return ledger.AwardRecord{}, false
	}

	s.log.Info().
		Uint64("block", rec.Sequence).
		Str("winner", rec.Winner).
		Int64("reward_micro", rec.Reward).
		Int64("total_minted_micro", rec.TotalMinted).
		Msg("block mined")

	s.broadcaster.BlockWon(rec)
	s.metrics.BlockMined(rec)

	// Best effort: announcement failure is logged and never retried,
	// the award above already committed.
	go func() {
		if err := s.announcer.AnnounceBlock(rec); err != nil {
			s.log.Error().Err(err).Uint64("block", rec.Sequence).Msg("block announcement failed")
		}
	}()

	return rec, true
}
