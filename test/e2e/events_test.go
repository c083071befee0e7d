package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/api"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/queue"
)

func TestProgressRecorderSequenceAndSeal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tpl := h.createTemplate("recorder")
	task := h.createTask(tpl.ID, "Recorder")
	exec := h.claimExecution(task.ID)

	rec := events.NewProgressRecorder(exec.ID, task.ID, h.stores.Executions, h.publisher)
	rec.Record(ctx, models.ExecutionStatusScanning, models.StageInit, 50, "halfway", nil)
	// A lower percent is clamped to the high-water mark.
	rec.Record(ctx, models.ExecutionStatusAnalyzing, models.StageAnalyzing, 30, "backslide", nil)
	rec.RecordTerminal(ctx, models.ExecutionStatusCompleted, nil, "")

	// The recorder is sealed; nothing after the terminal event lands.
	rec.Record(ctx, models.ExecutionStatusAnalyzing, models.StageAnalyzing, 99, "too late", nil)
	assert.Equal(t, 3, rec.Seq())
	assert.True(t, rec.Terminal())

	evts, err := h.catchup.ListEvents(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, evts, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{evts[0].Seq, evts[1].Seq, evts[2].Seq})
	assert.Equal(t, []int{50, 50, 100}, []int{evts[0].Percent, evts[1].Percent, evts[2].Percent})

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, row.Status)
	assert.Equal(t, 100, row.Progress)
}

func TestCatchupReplaysFromSequence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tpl := h.createTemplate("catchup")
	task := h.createTask(tpl.ID, "Catchup")
	exec := h.claimExecution(task.ID)

	for seq := 1; seq <= 5; seq++ {
		require.NoError(t, h.publisher.PublishProgress(ctx, events.ProgressPayload{
			ExecutionID: exec.ID,
			Seq:         seq,
			Status:      models.ExecutionStatusAnalyzing,
			Stage:       models.StageAnalyzing,
			Percent:     seq * 10,
			Message:     "step",
			Timestamp:   time.Now().Format(time.RFC3339Nano),
		}))
	}

	// A client that saw seq 2 resumes from 3.
	caught, err := h.catchup.GetCatchupEvents(ctx, events.ExecutionChannel(exec.ID), 2, 200)
	require.NoError(t, err)
	require.Len(t, caught, 3)
	for i, evt := range caught {
		assert.Equal(t, 3+i, evt.Seq)
		assert.Equal(t, events.EventTypeProgress, evt.Payload.Type)
		assert.Equal(t, exec.ID, evt.Payload.ExecutionID)
	}
}

// stubCanceler stands in for the worker pool behind the API.
type stubCanceler struct{}

func (s *stubCanceler) CancelExecution(string) bool  { return false }
func (s *stubCanceler) Health() []queue.WorkerHealth { return nil }

// TestWebSocketDeliveryThroughAPI drives the full streaming path: events
// published through PostgreSQL NOTIFY reach a WebSocket client connected
// to the API server, with catchup covering events published before the
// subscription.
func TestWebSocketDeliveryThroughAPI(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager := events.NewConnectionManager(h.catchup, 5*time.Second)
	listener := events.NewNotifyListener(h.connStr, manager)
	require.NoError(t, listener.Start(context.Background()))
	t.Cleanup(func() { listener.Stop(context.Background()) })
	manager.SetListener(listener)

	gin.SetMode(gin.TestMode)
	server := api.NewServer(h.cfg, h.db, h.stores, h.catchup, manager, &stubCanceler{}, h.storage)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tpl := h.createTemplate("streaming")
	task := h.createTask(tpl.ID, "Streaming")
	exec := h.claimExecution(task.ID)
	channel := events.ExecutionChannel(exec.ID)

	// Published before the subscription: only catchup can deliver it.
	require.NoError(t, h.publisher.PublishProgress(ctx, events.ProgressPayload{
		ExecutionID: exec.ID, Seq: 1,
		Status: models.ExecutionStatusScanning, Stage: models.StageInit,
		Percent: 5, Message: "before subscribe",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, "connection.established", readWS(t, ctx, conn)["type"])

	sub, err := json.Marshal(events.ClientMessage{Action: "subscribe", Channel: channel})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, sub))

	assert.Equal(t, "subscription.confirmed", readWS(t, ctx, conn)["type"])

	caught := readWS(t, ctx, conn)
	assert.Equal(t, events.EventTypeProgress, caught["type"])
	assert.Equal(t, float64(1), caught["seq"])
	assert.Equal(t, "before subscribe", caught["message"])

	// Published after LISTEN is active: delivered live.
	require.NoError(t, h.publisher.PublishProgress(ctx, events.ProgressPayload{
		ExecutionID: exec.ID, Seq: 2,
		Status: models.ExecutionStatusScanning, Stage: models.StageSchema,
		Percent: 15, Message: "after subscribe",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}))

	live := readWS(t, ctx, conn)
	assert.Equal(t, events.EventTypeProgress, live["type"])
	assert.Equal(t, float64(2), live["seq"])
	assert.Equal(t, "after subscribe", live["message"])

	// Ping keeps the connection accountable both ways.
	ping, err := json.Marshal(events.ClientMessage{Action: "ping"})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, ping))
	assert.Equal(t, "pong", readWS(t, ctx, conn)["type"])
}

func readWS(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}
