package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/HerbHall/amrwatch/internal/metrics"
	"github.com/HerbHall/amrwatch/internal/probe"
	"github.com/HerbHall/amrwatch/internal/status"
	"github.com/HerbHall/amrwatch/internal/store"
	"github.com/HerbHall/amrwatch/internal/testutil"
	"github.com/HerbHall/amrwatch/internal/tracker"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTargets = []tracker.Target{
	{Name: "Utac01", Address: "10.158.17.140"},
	{Name: "Utac02", Address: "10.158.17.43"},
}

type fakeEvents struct {
	events []store.StoredEvent
	err    error
	robot  string
}

func (f *fakeEvents) ListEvents(_ context.Context, robot string) ([]store.StoredEvent, error) {
	f.robot = robot
	return f.events, f.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *status.Board, *event.Bus) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	board := status.NewBoard(testTargets, time.Date(2025, 7, 10, 13, 6, 9, 0, time.UTC))
	board.Attach(bus)
	return New("127.0.0.1:0", board, bus, zap.NewNop(), opts...), board, bus
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := get(t, s, "/api/v1/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "amrwatch", body["service"])
}

func TestHandleStatus(t *testing.T) {
	s, _, bus := newTestServer(t)
	bus.Publish(context.Background(), event.Event{Topic: event.TopicStatus, Payload: event.StatusUpdate{
		Name: "Utac01", Address: "10.158.17.140", Status: "Online", LatencyMs: 7,
	}})

	w := get(t, s, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var snap status.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "Online", snap.Rows[0].Status)
	assert.Equal(t, status.Initializing, snap.Rows[1].Status)
}

func TestHandleRobot(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := get(t, s, "/api/v1/status/Utac02")
	require.Equal(t, http.StatusOK, w.Code)
	var row status.Row
	require.NoError(t, json.NewDecoder(w.Body).Decode(&row))
	assert.Equal(t, "10.158.17.43", row.Address)

	w = get(t, s, "/api/v1/status/Utac09")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestHandleEvents(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/events").Code)
	})

	t.Run("filtered", func(t *testing.T) {
		fe := &fakeEvents{events: []store.StoredEvent{{Robot: "Utac01", Event: "Offline"}}}
		s, _, _ := newTestServer(t, WithEvents(fe))

		w := get(t, s, "/api/v1/events?robot=Utac01")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Utac01", fe.robot)
		var got []store.StoredEvent
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Len(t, got, 1)
	})

	t.Run("empty list", func(t *testing.T) {
		s, _, _ := newTestServer(t, WithEvents(&fakeEvents{}))
		w := get(t, s, "/api/v1/events")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	})

	t.Run("limit keeps the newest", func(t *testing.T) {
		fe := &fakeEvents{events: []store.StoredEvent{
			{Robot: "Utac01", Event: "Offline"},
			{Robot: "Utac01", Event: "Online"},
			{Robot: "Utac01", Event: "Offline"},
		}}
		s, _, _ := newTestServer(t, WithEvents(fe))

		w := get(t, s, "/api/v1/events?limit=2")
		require.Equal(t, http.StatusOK, w.Code)
		var got []store.StoredEvent
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, "Online", got[0].Event)
	})

	t.Run("bad limit", func(t *testing.T) {
		s, _, _ := newTestServer(t, WithEvents(&fakeEvents{}))
		assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/events?limit=0").Code)
		assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/events?limit=ten").Code)
	})

	t.Run("sqlite mirror", func(t *testing.T) {
		es := testutil.NewEventStore(t)
		s, _, bus := newTestServer(t, WithEvents(es))
		bus.Subscribe(event.TopicTransition, es.HandleTransition)

		at := time.Date(2025, 7, 10, 13, 6, 9, 0, time.UTC)
		for i, to := range []string{"Online", "Offline"} {
			require.NoError(t, bus.Publish(context.Background(), event.Event{
				Topic: event.TopicTransition,
				Payload: event.Transition{
					Name: "Utac02", Address: "10.158.17.43", To: to,
					LatencyMs: -1, At: at.Add(time.Duration(i) * 10 * time.Second), Initial: i == 0,
				},
			}))
		}

		w := get(t, s, "/api/v1/events?robot=Utac02")
		require.Equal(t, http.StatusOK, w.Code)
		var got []store.StoredEvent
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, "Offline", got[1].Event)
		assert.Equal(t, es.RunID(), got[0].RunID)
	})

	t.Run("store error", func(t *testing.T) {
		s, _, _ := newTestServer(t, WithEvents(&fakeEvents{err: errors.New("locked")}))
		assert.Equal(t, http.StatusInternalServerError, get(t, s, "/api/v1/events").Code)
	})
}

func TestHandleStates(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/states").Code)
	})

	t.Run("tracked", func(t *testing.T) {
		tr := tracker.New(testTargets)
		at := time.Date(2025, 7, 10, 13, 6, 9, 0, time.UTC)
		tr.Observe(testTargets[1], probe.Unreachable(), at)
		s, _, _ := newTestServer(t, WithStates(tr))

		w := get(t, s, "/api/v1/states")
		require.Equal(t, http.StatusOK, w.Code)
		var got []map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Len(t, got, 2)

		assert.Equal(t, "Utac01", got[0]["name"])
		assert.Equal(t, "Unknown", got[0]["state"])
		assert.NotContains(t, got[0], "since")

		assert.Equal(t, "Utac02", got[1]["name"])
		assert.Equal(t, "Offline", got[1]["state"])
		assert.Equal(t, "2025-07-10T13:06:09Z", got[1]["since"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	c := metrics.New()
	s, _, bus := newTestServer(t, WithMetrics(c.Registry()))
	c.Attach(bus)

	bus.Publish(context.Background(), event.Event{Topic: event.TopicStatus, Payload: event.StatusUpdate{
		Name: "Utac01", Address: "10.158.17.140", Status: "Online", LatencyMs: 7,
	}})

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `amrwatch_target_online{ip="10.158.17.140",robot="Utac01"} 1`)
}

func TestHandleStream(t *testing.T) {
	s, _, bus := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/stream", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	// Initial snapshot: one message per robot.
	for _, want := range testTargets {
		var u event.StatusUpdate
		require.NoError(t, wsjson.Read(ctx, c, &u))
		assert.Equal(t, want.Name, u.Name)
		assert.Equal(t, status.Initializing, u.Status)
	}

	// The subscription is registered before the snapshot is sent, so this
	// update cannot be missed.
	bus.Publish(ctx, event.Event{Topic: event.TopicStatus, Payload: event.StatusUpdate{
		Name: "Utac02", Address: "10.158.17.43", Status: "Offline", LatencyMs: -1,
	}})

	var u event.StatusUpdate
	require.NoError(t, wsjson.Read(ctx, c, &u))
	assert.Equal(t, "Utac02", u.Name)
	assert.Equal(t, "Offline", u.Status)

	c.Close(websocket.StatusNormalClosure, "")
}
