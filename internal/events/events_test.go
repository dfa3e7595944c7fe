package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestEvent_Subject(t *testing.T) {
	e := Event{OperationID: "op-1", Kind: KindStarted}
	assert.Equal(t, "ragd.documents.op-1.started", e.Subject(DefaultSubjectPrefix))

	removed := Event{OperationID: "op-2", Kind: KindRemoved}
	assert.Equal(t, "custom.removed", removed.Subject("custom"))
}

func TestNewOperationID(t *testing.T) {
	a, b := NewOperationID(), NewOperationID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestNATSPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("test.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	p := NewNATSPublisher(nc, "test", nil)
	require.NoError(t, p.Publish(context.Background(), Event{
		OperationID: "op-1",
		Operation:   "ingest",
		Kind:        KindCompleted,
		Source:      "handbook.pdf",
		Total:       3,
		DocumentIDs: []string{"a", "b", "c"},
	}))
	require.NoError(t, p.Close())

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.op-1.completed", msg.Subject)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "handbook.pdf", got.Source)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, []string{"a", "b", "c"}, got.DocumentIDs)
	assert.False(t, got.Timestamp.IsZero())

	assert.False(t, nc.IsClosed(), "borrowed connection stays open")
}

func TestConnect_OwnsConnection(t *testing.T) {
	server := startTestNATSServer(t)

	p, err := Connect(server.ClientURL(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjectPrefix, p.prefix)
	require.NoError(t, p.Publish(context.Background(), Event{Kind: KindRemoved, Source: "x", Removed: 2}))
	require.NoError(t, p.Close())
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "", nil)
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), Event{}))
	require.NoError(t, p.Close())
}
