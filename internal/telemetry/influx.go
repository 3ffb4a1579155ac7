// Package telemetry writes operational measurements to InfluxDB. The
// recorder uses the non-blocking write API, so a slow or absent Influx
// never stalls the pool; a nil recorder is valid and records nothing.
package telemetry

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/pkg/units"
)

// Config holds InfluxDB connection settings. An empty URL disables
// telemetry.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder emits measurement points for pool events.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewRecorder connects the async write API and drains its error channel
// into the log.
func NewRecorder(cfg Config, log zerolog.Logger) *Recorder {
	if cfg.URL == "" {
		return nil
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	go func() {
		for err := range writeAPI.Errors() {
			log.Warn().Err(err).Msg("influx write failed")
		}
	}()

	return &Recorder{client: client, writeAPI: writeAPI}
}

// BlockMined records a block result.
func (r *Recorder) BlockMined(rec ledger.AwardRecord) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint("block_mined",
		map[string]string{"winner": rec.Winner},
		map[string]interface{}{
			"sequence":     int64(rec.Sequence),
			"reward":       units.DisplayFloat(rec.Reward),
			"total_minted": units.DisplayFloat(rec.TotalMinted),
		},
		time.Now(),
	)
	r.writeAPI.WritePoint(p)
}

// CashoutRequested records a successful cashout debit.
func (r *Recorder) CashoutRequested(identity string, micro int64) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint("cashout_requested",
		map[string]string{"identity": identity},
		map[string]interface{}{"amount": units.DisplayFloat(micro)},
		time.Now(),
	)
	r.writeAPI.WritePoint(p)
}

// ActiveUsers records the live-session count after a bind or unbind.
func (r *Recorder) ActiveUsers(count int) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint("active_users",
		nil,
		map[string]interface{}{"count": count},
		time.Now(),
	)
	r.writeAPI.WritePoint(p)
}

// Close flushes pending points and shuts the client down.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.writeAPI.Flush()
	r.client.Close()
}
