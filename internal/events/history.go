package events

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

type HistoryItem struct {
	Topic     string
	Name      string
	Payload   interface{}
	Timestamp time.Time
}

// History keeps the most recent notifications of a single vault. Cap will be
// rounded up to the nearest power of 2. When the log reaches its capacity the
// oldest item is overwritten; the implementation uses a ring buffer (deque)
// to avoid unnecessary allocations.
type History struct {
	mutex sync.Mutex
	data  *deque.Deque[HistoryItem]
	cap   int
}

func NewHistory(cap int) *History {
	return &History{
		data: deque.New[HistoryItem](cap, cap),
		cap:  cap,
	}
}

func (h *History) Add(item HistoryItem) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.data.Len() >= h.cap {
		h.data.PopFront()
	}
	h.data.PushBack(item)
}

func (h *History) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.data.Len()
}

// GetAll returns a snapshot of the history, oldest first
func (h *History) GetAll() []HistoryItem {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	items := make([]HistoryItem, 0, h.data.Len())
	for i := 0; i < h.data.Len(); i++ {
		items = append(items, h.data.At(i))
	}
	return items
}
