package events

import (
	"sync"

	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"go.uber.org/atomic"
)

// Subscriber receives notifications published for a topic it attached to.
// Delivery is synchronous and in publish order; subscribers must not block.
type Subscriber interface {
	Update(topic string, payload interface{})
}

type EventManager struct {
	mutex       sync.RWMutex
	subscribers map[string][]Subscriber

	published atomic.Int64
	dropped   atomic.Int64

	log interfaces.ILogger
}

func NewEventManager(log interfaces.ILogger) *EventManager {
	return &EventManager{
		subscribers: make(map[string][]Subscriber),
		log:         log,
	}
}

func (em *EventManager) Attach(topic string, subscriber Subscriber) {
	em.mutex.Lock()
	defer em.mutex.Unlock()
	em.subscribers[topic] = append(em.subscribers[topic], subscriber)
}

func (em *EventManager) Publish(topic string, payload interface{}) {
	em.mutex.RLock()
	subscribers := em.subscribers[topic]
	em.mutex.RUnlock()

	if len(subscribers) == 0 {
		em.dropped.Inc()
		em.log.Debugf("no subscribers for topic %s, notification dropped", topic)
		return
	}

	for _, subscriber := range subscribers {
		subscriber.Update(topic, payload)
	}
	em.published.Inc()
}

func (em *EventManager) GetPublishedCount() int64 {
	return em.published.Load()
}

func (em *EventManager) GetDroppedCount() int64 {
	return em.dropped.Load()
}
