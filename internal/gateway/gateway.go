// Package gateway is the websocket edge of the pool. It translates
// inbound session events into engine and processor calls and pushes
// state changes back out, to one session or to all of them. Sessions
// move Unregistered → Registered → Terminated; a session processes its
// own events in order on its read pump.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/minepool/internal/cashout"
	"github.com/terminal-bench/minepool/internal/engine"
	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/internal/telemetry"
	"github.com/terminal-bench/minepool/pkg/units"
)

// Config holds gateway configuration.
type Config struct {
	StaticFile      string // client page served at /, empty disables it
	AdminJWTSecret  string // empty disables the admin API
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Gateway owns the HTTP router and the live websocket sessions.
type Gateway struct {
	router    *gin.Engine
	engine    *engine.Engine
	processor *cashout.Processor
	pending   cashout.PendingStore
	metrics   *telemetry.Recorder
	log       zerolog.Logger
	jwtSecret []byte

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	rateLimiter *RateLimiter
}

// session is one websocket connection. The registered flag is only
// touched by the session's own read pump.
type session struct {
	id         uuid.UUID
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	registered bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// New builds the gateway and its routes.
func New(cfg Config, eng *engine.Engine, proc *cashout.Processor, pending cashout.PendingStore, metrics *telemetry.Recorder, log zerolog.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)

	g := &Gateway{
		router:    gin.New(),
		engine:    eng,
		processor: proc,
		pending:   pending,
		metrics:   metrics,
		log:       log,
		jwtSecret: []byte(cfg.AdminJWTSecret),
		sessions:  make(map[uuid.UUID]*session),
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
	}

	g.router.Use(gin.Recovery())
	g.router.Use(g.rateLimitMiddleware())

	if cfg.StaticFile != "" {
		g.router.StaticFile("/", cfg.StaticFile)
	}
	g.router.GET("/health", g.healthCheck)
	g.router.GET("/ws", g.handleWebSocket)

	v1 := g.router.Group("/api/v1")
	{
		v1.GET("/admin/cashouts", g.adminAuth(), g.listPendingCashouts)
	}

	return g
}

// Handler returns the HTTP handler for the server and for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Middleware

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(g.jwtSecret) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin auth not configured"})
			return
		}

		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return g.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}

// Handlers

func (g *Gateway) listPendingCashouts(c *gin.Context) {
	if g.pending == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pending store not configured"})
		return
	}
	list, err := g.pending.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending cashouts"})
		return
	}
	if list == nil {
		list = []cashout.PendingCashout{}
	}
	c.JSON(http.StatusOK, gin.H{"cashouts": list})
}

// WebSocket handling

func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sess := &session{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	g.mu.Lock()
	g.sessions[sess.id] = sess
	g.mu.Unlock()

	go g.writePump(sess)
	go g.readPump(sess)
}

func (g *Gateway) readPump(sess *session) {
	defer func() {
		g.mu.Lock()
		delete(g.sessions, sess.id)
		g.mu.Unlock()
		close(sess.done)
		sess.conn.Close()

		// Terminated: clear the binding, keep the balance.
		if identity, active, ok := g.engine.Disconnect(sess.id); ok {
			g.log.Info().Str("identity", identity).Msg("identity disconnected")
			g.broadcastActiveUsers(active)
		}
	}()

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleFrame(sess, message)
	}
}

func (g *Gateway) writePump(sess *session) {
	for {
		select {
		case message := <-sess.send:
			if err := sess.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

// handleFrame dispatches one inbound event. Unknown or malformed frames
// are dropped; they must never take the process down.
func (g *Gateway) handleFrame(sess *session, message []byte) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		g.log.Debug().Err(err).Msg("malformed frame dropped")
		return
	}

	switch frame.Type {
	case EventRegisterIdentity:
		g.handleRegister(sess, frame.Payload)
	case EventQueryBalance, EventQueryBalanceOld:
		g.handleQueryBalance(sess)
	case EventCashout:
		g.handleCashout(sess, frame.Payload)
	default:
		g.log.Debug().Str("type", frame.Type).Msg("unknown event dropped")
	}
}

func (g *Gateway) handleRegister(sess *session, payload json.RawMessage) {
	if sess.registered {
		return
	}

	var identity string
	if err := json.Unmarshal(payload, &identity); err != nil || identity == "" {
		return
	}

	res, err := g.engine.Register(identity, sess.id)
	if err != nil {
		// Identity held by another live session; that binding is
		// untouched and this session stays unregistered.
		g.emit(sess, EventWalletError, "wallet already in use in another session")
		return
	}
	sess.registered = true

	g.log.Info().
		Str("identity", identity).
		Bool("reconnect", res.Reconnect).
		Msg("identity registered")

	g.emit(sess, EventWalletConfirmed, identity)
	g.emit(sess, EventBalance, BalancePayload{Balance: units.DisplayFloat(res.Balance)})
	g.emit(sess, EventHistoryComplete, toAwardPayloads(res.History))
	g.broadcastActiveUsers(res.Active)
}

func (g *Gateway) handleQueryBalance(sess *session) {
	balance, err := g.engine.Balance(sess.id)
	if err != nil {
		// Not registered: silently ignored.
		return
	}
	g.emit(sess, EventBalance, BalancePayload{Balance: units.DisplayFloat(balance)})
}

func (g *Gateway) handleCashout(sess *session, payload json.RawMessage) {
	var amount decimal.Decimal
	if err := json.Unmarshal(payload, &amount); err != nil {
		g.log.Debug().Err(err).Msg("malformed cashout amount dropped")
		return
	}

	receipt, err := g.processor.Request(context.Background(), sess.id, amount)
	switch {
	case errors.Is(err, engine.ErrNotRegistered):
		// Unregistered clients are ignored.
	case errors.Is(err, ledger.ErrInvalidAmount):
		g.emit(sess, EventCashoutError, "invalid cashout amount")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		g.emit(sess, EventCashoutError, "insufficient balance")
	case err != nil:
		g.emit(sess, EventCashoutError, "cashout failed")
	default:
		g.emit(sess, EventCashoutConfirm, CashoutConfirmPayload{
			Amount: units.DisplayFloat(receipt.Amount),
		})
	}
}

// emit queues an event for one session, dropping it if the session's
// buffer is full or closed.
func (g *Gateway) emit(sess *session, eventType string, payload interface{}) {
	data, err := encodeFrame(eventType, payload)
	if err != nil {
		g.log.Error().Err(err).Str("type", eventType).Msg("failed to encode frame")
		return
	}
	select {
	case sess.send <- data:
	case <-sess.done:
	default:
	}
}

// broadcast queues an event for every connected session.
func (g *Gateway) broadcast(eventType string, payload interface{}) {
	data, err := encodeFrame(eventType, payload)
	if err != nil {
		g.log.Error().Err(err).Str("type", eventType).Msg("failed to encode frame")
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, sess := range g.sessions {
		select {
		case sess.send <- data:
		case <-sess.done:
		default:
		}
	}
}

func (g *Gateway) broadcastActiveUsers(count int) {
	g.metrics.ActiveUsers(count)
	g.broadcast(EventActiveUsers, ActiveUsersPayload{Count: count})
}

// BlockWon pushes a freshly mined block to every session. Implements
// lottery.Broadcaster.
func (g *Gateway) BlockWon(rec ledger.AwardRecord) {
	g.broadcast(EventBlockWon, toAwardPayload(rec))
}

// RateLimiter is a sliding-window request limiter keyed by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// Allow checks if a request is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	valid := make([]time.Time, 0)
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}
