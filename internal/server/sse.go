package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// streamBacklog is the number of recent events kept for Last-Event-ID
	// replay.
	streamBacklog = 1000

	streamKeepalive = 15 * time.Second

	// streamClientBuffer is the per-client queue; events beyond it are dropped
	// for that client.
	streamClientBuffer = 64
)

// streamEvent is one event on the SSE stream.
type streamEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// EventStream fans gate events out to connected SSE clients and keeps a
// bounded backlog for reconnecting clients. It implements events.Publisher.
type EventStream struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	backlog []streamEvent // oldest first, at most streamBacklog entries
}

type sseClient struct {
	patterns []string // empty matches every topic
	ch       chan streamEvent
}

// NewEventStream returns an EventStream with no clients.
func NewEventStream() *EventStream {
	return &EventStream{clients: make(map[*sseClient]struct{})}
}

// Publish encodes event as JSON and broadcasts it on topic.
func (h *EventStream) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling stream event: %w", err)
	}
	h.broadcast(topic, data)
	return nil
}

// Close is a no-op; clients drop off when their requests end.
func (h *EventStream) Close() error { return nil }

func (h *EventStream) broadcast(topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := streamEvent{ID: h.lastID, Topic: topic, Data: data}
	if len(h.backlog) == streamBacklog {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:streamBacklog-1]
	}
	h.backlog = append(h.backlog, evt)

	for c := range h.clients {
		if !c.matches(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// slow client
		}
	}
}

func (h *EventStream) subscribe(patterns []string) *sseClient {
	c := &sseClient{patterns: patterns, ch: make(chan streamEvent, streamClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventStream) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// since returns the backlog entries newer than lastID, oldest first.
func (h *EventStream) since(lastID uint64) []streamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []streamEvent
	for _, evt := range h.backlog {
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

func (c *sseClient) matches(topic string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if matchTopic(p, topic) {
			return true
		}
	}
	return false
}

// matchTopic matches a dot-separated topic against a NATS-style pattern:
// "*" matches one segment and a trailing ">" matches one or more.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	seg := strings.Split(topic, ".")
	for i, p := range pat {
		switch {
		case p == ">":
			return i < len(seg)
		case i >= len(seg):
			return false
		case p != "*" && p != seg[i]:
			return false
		}
	}
	return len(pat) == len(seg)
}

// handleEventStream handles GET /v1/events/stream.
//
// ?topics=gates.gate.*,gates.evaluation.recorded narrows the stream; a
// Last-Event-ID header replays missed events still in the backlog.
func (s *GateServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var patterns []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			patterns = append(patterns, t)
		}
	}

	client := s.stream.subscribe(patterns)
	defer s.stream.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.stream.pump(r.Context(), w, flusher, client, r.Header.Get("Last-Event-ID"))
}

// pump replays the backlog after lastEventID, then forwards live events until
// ctx is done. Events at or below the highest ID already written are skipped,
// so one published between subscribe and replay is sent once.
func (h *EventStream) pump(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, client *sseClient, lastEventID string) {
	var sent uint64
	if lastEventID != "" {
		if lastID, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
			for _, evt := range h.since(lastID) {
				if client.matches(evt.Topic) {
					writeStreamEvent(w, evt)
				}
				sent = evt.ID
			}
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			if evt.ID <= sent {
				continue
			}
			sent = evt.ID
			writeStreamEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, evt streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
