package hub

import (
	"hash/fnv"
	"log"
	"sync"

	"studenttracker/internal/metrics"
)

// Conn is one live transport connection. Push must be safe to call from
// multiple goroutines; implementations serialize their own writes.
type Conn interface {
	Push(event string, payload any) error
}

const shardCount = 16

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
}

// Hub maps a user id to the set of live connections that user holds open.
// It is process-local and rebuilt empty on restart; constructed once in main
// and handed to every component that needs push delivery.
type Hub struct {
	shards [shardCount]*shard
}

func New() *Hub {
	h := &Hub{}
	for i := range h.shards {
		h.shards[i] = &shard{conns: make(map[string]map[Conn]struct{})}
	}
	return h
}

func (h *Hub) shardFor(userID string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return h.shards[f.Sum32()%shardCount]
}

// Register adds conn to userID's set. Registering the same conn twice is a
// no-op. Anonymous connections are never registered; callers skip this step
// when no identity was resolved.
func (h *Hub) Register(userID string, conn Conn) {
	s := h.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		s.conns[userID] = set
	}
	if _, dup := set[conn]; !dup {
		set[conn] = struct{}{}
		metrics.LiveConnections.Inc()
	}
}

// Unregister removes conn from userID's set. A conn that was never registered
// is a no-op; disconnects can race with registration.
func (h *Hub) Unregister(userID string, conn Conn) {
	s := h.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		return
	}
	if _, present := set[conn]; !present {
		return
	}
	delete(set, conn)
	metrics.LiveConnections.Dec()
	if len(set) == 0 {
		delete(s.conns, userID)
	}
}

// Broadcast delivers payload to every connection currently registered for
// userID. Zero registered connections means the user is offline and the event
// is dropped. A failing connection does not block delivery to the others.
func (h *Hub) Broadcast(userID, event string, payload any) {
	s := h.shardFor(userID)
	s.mu.RLock()
	targets := make([]Conn, 0, len(s.conns[userID]))
	for conn := range s.conns[userID] {
		targets = append(targets, conn)
	}
	s.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Push(event, payload); err != nil {
			metrics.PushFailures.Inc()
			log.Printf("hub: push %s to user %s failed: %v", event, userID, err)
			continue
		}
		metrics.PushesDelivered.Inc()
	}
}

// Reachable reports whether userID currently holds at least one connection.
func (h *Hub) Reachable(userID string) bool {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID]) > 0
}

// ConnCount returns the number of live connections for userID.
func (h *Hub) ConnCount(userID string) int {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID])
}
