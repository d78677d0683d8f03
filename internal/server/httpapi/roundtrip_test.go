package httpapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// TestClientRoundtrip runs the real client transport against the server,
// so both ends are held to the same wire contract.
func TestClientRoundtrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register(t, "alice", "dev-0")

	client := transport.NewHTTPClient(h.srv.URL, 5*time.Second)
	client.SetDeviceID("dev-1")

	session, err := client.Login(ctx, "alice", "pa55word")
	require.NoError(t, err)
	require.NotEmpty(t, session.TenantID)

	require.NoError(t, client.Ping(ctx))

	res, conflict, err := client.Write(ctx, model.WriteRequest{
		EntityType:     "invoice",
		EntityID:       "inv-1",
		Op:             model.OpCreate,
		Payload:        json.RawMessage(`{"amount":500}`),
		IdempotencyKey: "m1",
	})
	require.NoError(t, err)
	require.Nil(t, conflict)
	assert.Equal(t, int64(1), res.Record.Version)

	v1 := int64(1)
	_, _, err = client.Write(ctx, model.WriteRequest{
		EntityType: "invoice", EntityID: "inv-1", Op: model.OpUpdate,
		Payload: json.RawMessage(`{"amount":450}`), ExpectedVersion: &v1, IdempotencyKey: "m2",
	})
	require.NoError(t, err)

	// A write against the superseded version comes back as a conflict with
	// the authority's current record attached.
	_, conflict, err = client.Write(ctx, model.WriteRequest{
		EntityType: "invoice", EntityID: "inv-1", Op: model.OpUpdate,
		Payload: json.RawMessage(`{"amount":600}`), ExpectedVersion: &v1, IdempotencyKey: "m3",
	})
	require.ErrorIs(t, err, common.ErrVersionConflict)
	require.NotNil(t, conflict)
	assert.Equal(t, int64(2), conflict.CurrentVersion)
	assert.JSONEq(t, `{"amount":450}`, string(conflict.Record.Payload))

	page, err := client.ListChangedSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(2), page.Records[0].Version)
	assert.False(t, page.HasMore)

	require.NoError(t, client.AcquireLock(ctx, "invoice", "inv-1", session.UserID+"@dev-1", 30*time.Second))

	other := transport.NewHTTPClient(h.srv.URL, 5*time.Second)
	other.SetDeviceID("dev-2")
	_, err = other.Login(ctx, "alice", "pa55word")
	require.NoError(t, err)

	err = other.AcquireLock(ctx, "invoice", "inv-1", session.UserID+"@dev-2", 30*time.Second)
	require.ErrorIs(t, err, common.ErrLockDenied)

	require.NoError(t, client.ReleaseLock(ctx, "invoice", "inv-1", session.UserID+"@dev-1"))
	require.NoError(t, other.AcquireLock(ctx, "invoice", "inv-1", session.UserID+"@dev-2", 30*time.Second))
}
