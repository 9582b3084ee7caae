package messaging

import (
	"context"
	"sync"

	"github.com/openfleet/gt06d/config"
)

type ConsumerHandler func(data interface{}) error

/*
Messaging is the in-process fan-out bus between the ingestion side and
consumers like the dashboard bridge or the notification forwarder. Consumers
are called synchronously in subscription order; a failing consumer is logged
and does not stop delivery to the others.
*/
type Messaging struct {
	ctx       context.Context
	mu        sync.RWMutex
	consumers []ConsumerHandler
}

func NewMessaging(ctx context.Context) *Messaging {
	return &Messaging{
		ctx: ctx,
	}
}

func (m *Messaging) Publish(data interface{}) {
	log := config.GetLogger(m.ctx)

	m.mu.RLock()
	consumers := m.consumers
	m.mu.RUnlock()

	for _, consumerFunc := range consumers {
		err := consumerFunc(data)
		if err == nil {
			log.Debugf("Data forwarded and processed.")
		} else {
			log.Errorf("Failed to forward data. %v", err)
		}
	}
}

func (m *Messaging) Subscribe(consumerFunc ConsumerHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumers = append(m.consumers, consumerFunc)
}
