package cashout

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/minepool/internal/announce"
)

func approvalMsg(t *testing.T, appr announce.Approval) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(appr)
	require.NoError(t, err)
	return &nats.Msg{Subject: announce.SubjectCashoutApproved, Data: data}
}

func TestApprovalHandling(t *testing.T) {
	t.Run("acknowledgement clears the pending record", func(t *testing.T) {
		store := newMemoryStore()
		id := uuid.New()
		require.NoError(t, store.Put(context.Background(), PendingCashout{
			RequestID: id,
			Identity:  "W1",
			Amount:    4,
		}))

		a := NewApprovals(nil, store, zerolog.Nop())
		a.handle(approvalMsg(t, announce.Approval{RequestID: id, ApprovedBy: "operator"}))

		pending, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("unknown request is ignored", func(t *testing.T) {
		store := newMemoryStore()
		a := NewApprovals(nil, store, zerolog.Nop())

		a.handle(approvalMsg(t, announce.Approval{RequestID: uuid.New()}))

		pending, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("malformed message is dropped", func(t *testing.T) {
		store := newMemoryStore()
		id := uuid.New()
		require.NoError(t, store.Put(context.Background(), PendingCashout{RequestID: id}))

		a := NewApprovals(nil, store, zerolog.Nop())
		a.handle(&nats.Msg{Data: []byte("not json")})

		pending, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, pending, 1, "pending record is untouched")
	})
}
