package session

import (
	"context"
	"sync"
	"time"

	"barscan/internal/records"
)

// UpdateKind classifies a published session update.
type UpdateKind string

const (
	UpdateState   UpdateKind = "state"
	UpdateDevices UpdateKind = "devices"
	UpdateRecord  UpdateKind = "record"
	UpdateRemoved UpdateKind = "removed"
	UpdateCleared UpdateKind = "cleared"
)

// Update is one observable change to the session.
type Update struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Kind      UpdateKind      `json:"kind"`
	State     string          `json:"state,omitempty"`
	Status    string          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Record    *records.Record `json:"record,omitempty"`
	RecordID  string          `json:"record_id,omitempty"`
}

// UpdateSink receives every published update. Deliver runs on the publishing
// goroutine, which may hold the session lock, so it must not block or call
// back into the session.
type UpdateSink interface {
	Deliver(Update)
}

// UpdateHub stores recent updates and wakes waiters when new ones arrive.
type UpdateHub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Update
	nextSeq  uint64
	sinks    []UpdateSink
}

// NewUpdateHub constructs a bounded in-memory update buffer.
func NewUpdateHub(capacity int) *UpdateHub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &UpdateHub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink wires an additional sink that receives every published update.
func (h *UpdateHub) AddSink(sink UpdateSink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish appends an update, assigning its sequence number.
func (h *UpdateHub) Publish(u Update) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	u.Sequence = h.nextSeq
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, u)
	sinks := append([]UpdateSink(nil), h.sinks...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Deliver(u)
	}
}

// Fetch returns updates with sequence greater than since, at most limit of
// them. When wait is true it blocks until one is available or ctx ends. The
// returned cursor is the latest assigned sequence.
func (h *UpdateHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Update, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	stopWake := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer stopWake()

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		updates, next := h.snapshotLocked(since, limit)
		if len(updates) > 0 || !wait {
			return updates, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
	}
}

// Latest returns the most recently assigned sequence number.
func (h *UpdateHub) Latest() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

func (h *UpdateHub) snapshotLocked(since uint64, limit int) ([]Update, uint64) {
	start := -1
	for i, u := range h.buffer {
		if u.Sequence > since {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, h.nextSeq
	}
	end := min(start+limit, len(h.buffer))
	out := make([]Update, end-start)
	copy(out, h.buffer[start:end])
	return out, out[len(out)-1].Sequence
}
