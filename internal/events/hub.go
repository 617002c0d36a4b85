package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

const watcherBuffer = 64

// Filter decides whether a watcher receives an event
type Filter func(event CourseEvent) bool

type watcher struct {
	ch     chan CourseEvent
	filter Filter

	// last delivered version per live course
	versions map[string]int
}

// Hub fans one transport subscription out to any number of in-process watchers.
// Each watcher sees a course's events in increasing version order; stale or
// replayed versions are dropped.
type Hub struct {
	mu       sync.RWMutex
	watchers map[uint64]*watcher
	nextID   uint64
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		watchers: make(map[uint64]*watcher),
		logger:   logger,
	}
}

// Run consumes the transport until ctx is done or the channel closes
func (h *Hub) Run(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			h.handle(msg)
		}
	}
}

func (h *Hub) handle(msg *message.Message) {
	defer msg.Ack()

	envelope, err := DecodeEvent(msg.Payload)
	if err != nil {
		h.logger.Error("Dropping malformed course event", "message_id", msg.UUID, "error", err)
		return
	}
	h.Dispatch(envelope.Data)
}

// Dispatch delivers event to every matching watcher. A watcher whose buffer is
// full is disconnected rather than allowed to stall the others.
func (h *Hub) Dispatch(event CourseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, w := range h.watchers {
		if !w.accepts(event) {
			continue
		}
		select {
		case w.ch <- event:
		default:
			h.logger.Warn("Disconnecting slow course watcher", "watcher_id", id)
			delete(h.watchers, id)
			close(w.ch)
		}
	}
}

// accepts applies version ordering, then the filter. A course the watcher has
// already been shown keeps flowing so the viewer learns when it leaves the view.
// A deletion is the last event of a course, so its entry is dropped.
func (w *watcher) accepts(event CourseEvent) bool {
	last, seen := w.versions[event.CourseID]
	if seen && event.Version <= last {
		return false
	}
	if !seen && w.filter != nil && !w.filter(event) {
		return false
	}
	if event.Type == CourseDeleted {
		delete(w.versions, event.CourseID)
	} else {
		w.versions[event.CourseID] = event.Version
	}
	return true
}

// Subscribe registers a watcher. The returned channel is closed when ctx is done
// or the watcher is disconnected.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) <-chan CourseEvent {
	w := &watcher{
		ch:       make(chan CourseEvent, watcherBuffer),
		filter:   filter,
		versions: make(map[string]int),
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.watchers[id] = w
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(id)
	}()

	return w.ch
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watchers[id]; ok {
		delete(h.watchers, id)
		close(w.ch)
	}
}

// WatcherCount reports the number of live watchers
func (h *Hub) WatcherCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// Close disconnects every watcher
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, w := range h.watchers {
		delete(h.watchers, id)
		close(w.ch)
	}
}
