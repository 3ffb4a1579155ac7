package gateway

import (
	"encoding/json"

	"github.com/terminal-bench/minepool/internal/ledger"
	"github.com/terminal-bench/minepool/pkg/units"
)

// Event names on the websocket protocol. Amount-carrying payloads use
// display tokens; micro-tokens never cross the wire.
const (
	// inbound
	EventRegisterIdentity = "registerIdentity"
	EventQueryBalance     = "queryBalance"
	EventQueryBalanceOld  = "verBalance" // legacy alias kept for old clients
	EventCashout          = "cashout"

	// outbound
	EventWalletConfirmed = "walletConfirmed"
	EventWalletError     = "walletError"
	EventBalance         = "balance"
	EventHistoryComplete = "historyComplete"
	EventActiveUsers     = "activeUsers"
	EventCashoutConfirm  = "cashoutConfirm"
	EventCashoutError    = "cashoutError"
	EventBlockWon        = "blockWon"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// BalancePayload carries a balance in display tokens.
type BalancePayload struct {
	Balance float64 `json:"balance"`
}

// ActiveUsersPayload carries the live-session count.
type ActiveUsersPayload struct {
	Count int `json:"count"`
}

// CashoutConfirmPayload carries the debited amount in display tokens.
type CashoutConfirmPayload struct {
	Amount float64 `json:"amount"`
}

// AwardPayload is an AwardRecord converted to display units for
// historyComplete and blockWon events.
type AwardPayload struct {
	Block       uint64  `json:"block"`
	Winner      string  `json:"winner"`
	Reward      float64 `json:"reward"`
	Balance     float64 `json:"balance"`
	TotalMinted float64 `json:"totalMinted"`
}

func toAwardPayload(rec ledger.AwardRecord) AwardPayload {
	return AwardPayload{
		Block:       rec.Sequence,
		Winner:      rec.Winner,
		Reward:      units.DisplayFloat(rec.Reward),
		Balance:     units.DisplayFloat(rec.Balance),
		TotalMinted: units.DisplayFloat(rec.TotalMinted),
	}
}

func toAwardPayloads(recs []ledger.AwardRecord) []AwardPayload {
	out := make([]AwardPayload, len(recs))
	for i, rec := range recs {
		out[i] = toAwardPayload(rec)
	}
	return out
}

func encodeFrame(eventType string, payload interface{}) ([]byte, error) {
	frame := struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload,omitempty"`
	}{Type: eventType, Payload: payload}
	return json.Marshal(frame)
}
