package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/minepool/internal/announce"
	"github.com/terminal-bench/minepool/internal/cashout"
	"github.com/terminal-bench/minepool/internal/engine"
	"github.com/terminal-bench/minepool/internal/gateway"
	"github.com/terminal-bench/minepool/internal/lottery"
	"github.com/terminal-bench/minepool/internal/observability"
	"github.com/terminal-bench/minepool/internal/telemetry"
	"github.com/terminal-bench/minepool/pkg/messaging"
)

type config struct {
	Port       string `env:"PORT" envDefault:"3000"`
	StaticFile string `env:"STATIC_FILE" envDefault:"web/index.html"`

	// Reward schedule, in micro-tokens (1 token = 1e6 micro).
	BlockInterval time.Duration `env:"BLOCK_INTERVAL" envDefault:"5m"`
	InitialReward int64         `env:"INITIAL_REWARD" envDefault:"10000000"`
	RewardDecay   int64         `env:"REWARD_DECAY" envDefault:"5"`

	NATSURL        string `env:"NATS_URL"`
	RedisAddr      string `env:"REDIS_ADDR"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`

	InfluxURL    string `env:"INFLUX_URL"`
	InfluxToken  string `env:"INFLUX_TOKEN"`
	InfluxOrg    string `env:"INFLUX_ORG" envDefault:"minepool"`
	InfluxBucket string `env:"INFLUX_BUCKET" envDefault:"minepool"`

	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"300"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

func main() {
	log := observability.NewLogger("server")

	cfg, err := env.ParseAs[config]()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	eng := engine.New(engine.Config{
		InitialReward: cfg.InitialReward,
		DecayStep:     cfg.RewardDecay,
	})

	// Announcer: NATS bridge when configured, otherwise a no-op.
	var announcer announce.Announcer = announce.Nop{}
	var msgClient *messaging.Client
	if cfg.NATSURL != "" {
		msgClient, err = messaging.NewClient(messaging.Config{
			URL:            cfg.NATSURL,
			Name:           "minepool",
			ReconnectWait:  time.Second,
			MaxReconnects:  60,
			ConnectTimeout: 10 * time.Second,
		}, observability.NewLogger("messaging"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer msgClient.Close()
		announcer = announce.NewNATSAnnouncer(msgClient, observability.NewLogger("announce"))
		log.Info().Str("url", cfg.NATSURL).Msg("announcer connected and ready")
	} else {
		log.Warn().Msg("NATS_URL not set, announcements disabled")
	}

	var pending cashout.PendingStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, pending cashouts degraded")
		}
		cancel()
		pending = cashout.NewRedisStore(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, pending cashout store disabled")
	}

	metrics := telemetry.NewRecorder(telemetry.Config{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	}, observability.NewLogger("telemetry"))
	defer metrics.Close()

	processor := cashout.NewProcessor(eng, announcer, pending, metrics, observability.NewLogger("cashout"))

	gw := gateway.New(gateway.Config{
		StaticFile:      cfg.StaticFile,
		AdminJWTSecret:  cfg.AdminJWTSecret,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}, eng, processor, pending, metrics, observability.NewLogger("gateway"))

	scheduler := lottery.NewScheduler(lottery.Config{Interval: cfg.BlockInterval},
		eng, announcer, gw, metrics, observability.NewLogger("lottery"))

	if msgClient != nil {
		approvals := cashout.NewApprovals(msgClient, pending, observability.NewLogger("approvals"))
		if err := approvals.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start approval consumer")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      gw.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	grp.Go(func() error {
		return scheduler.Run(ctx)
	})

	grp.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}
