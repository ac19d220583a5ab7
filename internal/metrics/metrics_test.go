package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestCollector_StatusAndTransitions(t *testing.T) {
	c := New()
	bus := event.NewBus(zap.NewNop())
	detach := c.Attach(bus)
	defer detach()
	ctx := context.Background()

	bus.Publish(ctx, event.Event{Topic: event.TopicStatus, Payload: event.StatusUpdate{
		Name: "Utac01", Address: "10.158.17.140", Status: "Online", LatencyMs: 7, Duration: 7 * time.Millisecond,
	}})
	bus.Publish(ctx, event.Event{Topic: event.TopicTransition, Payload: event.Transition{Name: "Utac01", To: "Online", Initial: true}})
	bus.Publish(ctx, event.Event{Topic: event.TopicStatus, Payload: event.StatusUpdate{
		Name: "Utac02", Address: "10.158.17.43", Status: "Offline", LatencyMs: -1,
	}})
	bus.Publish(ctx, event.Event{Topic: event.TopicLogFailure, Payload: event.LogFailureEvent{Name: "Utac02"}})

	if got := testutil.ToFloat64(c.online.WithLabelValues("Utac01", "10.158.17.140")); got != 1 {
		t.Errorf("online(Utac01) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.online.WithLabelValues("Utac02", "10.158.17.43")); got != 0 {
		t.Errorf("online(Utac02) = %v, want 0", got)
	}
	if got := testutil.CollectAndCount(c.latency); got != 1 {
		t.Errorf("latency series = %d, want 1 (Utac02 has no latency)", got)
	}
	if got := testutil.ToFloat64(c.latency.WithLabelValues("Utac01", "10.158.17.140")); got != 7 {
		t.Errorf("latency(Utac01) = %v, want 7", got)
	}
	if got := testutil.ToFloat64(c.transitions.WithLabelValues("Utac01", "Online")); got != 1 {
		t.Errorf("transitions(Utac01, Online) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.logFailures); got != 1 {
		t.Errorf("log failures = %v, want 1", got)
	}
}

func TestCollector_LatencyDroppedWhenRobotGoesOffline(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Handle(ctx, event.Event{Payload: event.StatusUpdate{Name: "Utac04", Address: "10.158.17.38", Status: "Online", LatencyMs: 3}})
	if got := testutil.CollectAndCount(c.latency); got != 1 {
		t.Fatalf("latency series = %d, want 1", got)
	}
	c.Handle(ctx, event.Event{Payload: event.StatusUpdate{Name: "Utac04", Address: "10.158.17.38", Status: "Offline", LatencyMs: -1}})
	if got := testutil.CollectAndCount(c.latency); got != 0 {
		t.Errorf("latency series = %d after going offline, want 0", got)
	}
}

func TestCollector_Exposition(t *testing.T) {
	c := New()
	c.Handle(context.Background(), event.Event{Payload: event.Transition{Name: "Utac03", To: "Offline"}})

	expected := `
# HELP amrwatch_transitions_total State transitions observed per robot and new state.
# TYPE amrwatch_transitions_total counter
amrwatch_transitions_total{robot="Utac03",to="Offline"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "amrwatch_transitions_total"); err != nil {
		t.Error(err)
	}
}
