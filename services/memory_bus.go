package services

import (
	"context"
	"sync"

	"unplug/metrics"

	"go.uber.org/zap"
)

type memorySubscription struct {
	pattern string
	handler MessageHandler
	queue   chan memoryMessage
}

type memoryMessage struct {
	topic   string
	payload []byte
}

// MemoryBus is an in-process bus with real topic fan-out. Each subscription has
// its own bounded queue drained by one goroutine; a full queue drops the message.
type MemoryBus struct {
	logger     *zap.Logger
	bufferSize int

	mu        sync.RWMutex
	connected bool
	subs      []*memorySubscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	dropped   int
}

// NewMemoryBus creates an unconnected in-process bus
func NewMemoryBus(bufferSize int, logger *zap.Logger) *MemoryBus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &MemoryBus{
		logger:     logger,
		bufferSize: bufferSize,
	}
}

func (b *MemoryBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.connected = true
	for _, sub := range b.subs {
		b.startLocked(sub)
	}

	b.logger.Info("In-memory bus connected", zap.Int("subscriptions", len(b.subs)))
	return nil
}

func (b *MemoryBus) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	// fresh queues so a later Connect starts clean
	for _, sub := range b.subs {
		sub.queue = make(chan memoryMessage, b.bufferSize)
	}
	b.mu.Unlock()

	b.logger.Info("In-memory bus disconnected")
	return nil
}

func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Publish fans the payload out to every matching subscription without blocking
func (b *MemoryBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return ErrNotConnected
	}

	for _, sub := range b.subs {
		if !TopicMatches(sub.pattern, topic) {
			continue
		}
		msg := memoryMessage{topic: topic, payload: append([]byte(nil), payload...)}
		select {
		case sub.queue <- msg:
		default:
			b.dropped++
			metrics.PublishFailures.WithLabelValues("memory").Inc()
			b.logger.Debug("Dropping message for full subscription queue",
				zap.String("topic", topic),
				zap.String("pattern", sub.pattern))
		}
	}
	return nil
}

// Subscribe registers handler for pattern. Subscriptions made before Connect start on connect.
func (b *MemoryBus) Subscribe(pattern string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySubscription{
		pattern: pattern,
		handler: guardHandler(b.logger, nil, handler),
		queue:   make(chan memoryMessage, b.bufferSize),
	}
	b.subs = append(b.subs, sub)
	if b.connected {
		b.startLocked(sub)
	}
	return nil
}

// Dropped returns how many deliveries were discarded because a queue was full
func (b *MemoryBus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *MemoryBus) startLocked(sub *memorySubscription) {
	ctx := b.ctx
	queue := sub.queue
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-queue:
				sub.handler(msg.topic, msg.payload)
			}
		}
	}()
}
