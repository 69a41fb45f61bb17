package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/events"
)

func TestEventStream_PublishAndReceive(t *testing.T) {
	stream := NewEventStream()
	client := stream.subscribe(nil)
	defer stream.unsubscribe(client)

	if err := stream.Publish(context.Background(), events.TopicGatePassed, events.GateOutcome{GateKey: "design_lock", Passed: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicGatePassed || evt.ID != 1 {
			t.Fatalf("event = %d %q", evt.ID, evt.Topic)
		}
		if !strings.Contains(string(evt.Data), `"gate_key":"design_lock"`) {
			t.Fatalf("data = %s", evt.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventStream_TopicFiltering(t *testing.T) {
	stream := NewEventStream()
	client := stream.subscribe([]string{"gates.gate.*"})
	defer stream.unsubscribe(client)

	stream.broadcast(events.TopicEvaluationRecorded, []byte(`{}`))
	stream.broadcast(events.TopicGateFailed, []byte(`{}`))

	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicGateFailed {
			t.Fatalf("topic = %q, want %q", evt.Topic, events.TopicGateFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case evt := <-client.ch:
		t.Fatalf("unexpected event %q", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventStream_SlowClientDropped(t *testing.T) {
	stream := NewEventStream()
	client := stream.subscribe(nil)
	defer stream.unsubscribe(client)

	for range streamClientBuffer + 10 {
		stream.broadcast(events.TopicGateFailed, []byte(`{}`))
	}
	if got := len(client.ch); got != streamClientBuffer {
		t.Errorf("queued = %d, want %d", got, streamClientBuffer)
	}
}

func TestEventStream_BacklogBounded(t *testing.T) {
	stream := NewEventStream()
	for i := range streamBacklog + 5 {
		stream.broadcast("gates.gate.failed", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	all := stream.since(0)
	if len(all) != streamBacklog {
		t.Fatalf("backlog = %d, want %d", len(all), streamBacklog)
	}
	if all[0].ID != 6 || all[len(all)-1].ID != streamBacklog+5 {
		t.Errorf("backlog spans %d..%d", all[0].ID, all[len(all)-1].ID)
	}
	if got := stream.since(streamBacklog + 3); len(got) != 2 {
		t.Errorf("since(%d) = %d events, want 2", streamBacklog+3, len(got))
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"gates.gate.passed", "gates.gate.passed", true},
		{"gates.gate.*", "gates.gate.failed", true},
		{"gates.gate.*", "gates.evaluation.recorded", false},
		{"gates.>", "gates.project.record_added", true},
		{"gates.>", "gates", false},
		{"gates.*", "gates.gate.passed", false},
		{"*.gate.passed", "gates.gate.passed", true},
	}
	for _, tc := range tests {
		if got := matchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

// streamRequest runs the SSE handler until fn returns, then returns the body.
func streamRequest(t *testing.T, h http.Handler, path, lastEventID string, fn func()) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()
	// Give the handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	fn()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	return rec
}

func TestHandleEventStream_EvaluationEvents(t *testing.T) {
	_, st, h := newTestServer()
	seedDesignStage(t, st)

	rec := streamRequest(t, h, "/v1/events/stream?topics=gates.gate.*", "", func() {
		wantStatus(t, doRequest(t, h, http.MethodPost, "/v1/projects/pj-1/gates/partner_assigned/evaluate", nil), http.StatusOK)
	})

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event:"+events.TopicGateFailed) {
		t.Fatalf("missing gate failed event in:\n%s", body)
	}
	if strings.Contains(body, events.TopicEvaluationRecorded) {
		t.Fatalf("evaluation.recorded should be filtered out:\n%s", body)
	}
	if !strings.Contains(body, `"gate_key":"partner_assigned"`) {
		t.Fatalf("missing payload in:\n%s", body)
	}
}

func TestHandleEventStream_LastEventID(t *testing.T) {
	srv, _, h := newTestServer()
	srv.stream.broadcast("gates.gate.created", []byte(`{"n":1}`))
	srv.stream.broadcast("gates.gate.deactivated", []byte(`{"n":2}`))
	srv.stream.broadcast("gates.gate.deleted", []byte(`{"n":3}`))

	rec := streamRequest(t, h, "/v1/events/stream", "1", func() {})

	body := rec.Body.String()
	if strings.Contains(body, `data:{"n":1}`) {
		t.Fatalf("event 1 replayed:\n%s", body)
	}
	for _, want := range []string{"id:2\nevent:gates.gate.deactivated\ndata:{\"n\":2}\n\n", `data:{"n":3}`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestEventStream_ReplayOverlapSentOnce(t *testing.T) {
	stream := NewEventStream()
	client := stream.subscribe(nil)
	defer stream.unsubscribe(client)

	// Published after subscribe: each event is queued on client.ch and also
	// sits in the backlog that Last-Event-ID replays.
	stream.broadcast(events.TopicGateFailed, []byte(`{"n":1}`))
	stream.broadcast(events.TopicGatePassed, []byte(`{"n":2}`))

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.pump(ctx, rec, rec, client, "0")
	}()
	time.Sleep(50 * time.Millisecond)
	stream.broadcast(events.TopicGateFailed, []byte(`{"n":3}`))
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	for _, id := range []string{"id:1\n", "id:2\n", "id:3\n"} {
		if n := strings.Count(body, id); n != 1 {
			t.Errorf("%q written %d times in:\n%s", id, n, body)
		}
	}
}
