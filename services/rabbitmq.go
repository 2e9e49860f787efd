package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"unplug/config"
	"unplug/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type amqpSubscription struct {
	pattern string
	handler MessageHandler
}

// AMQPBus is the Bus implementation backed by a RabbitMQ topic exchange. The
// default amq.topic exchange is shared with RabbitMQ's MQTT plugin, so both
// transports see the same traffic.
type AMQPBus struct {
	config *config.Config
	logger *zap.Logger
	name   string

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	subs      []amqpSubscription
	ctx       context.Context
	cancel    context.CancelFunc
	isClosing bool
	publishMu sync.Mutex
}

// NewAMQPBus creates a new RabbitMQ bus instance
func NewAMQPBus(cfg *config.Config, name string, logger *zap.Logger) *AMQPBus {
	return &AMQPBus{
		config: cfg,
		logger: logger,
		name:   name,
	}
}

// amqpRoutingKey converts an MQTT-style topic or pattern into an AMQP routing key
func amqpRoutingKey(topic string) string {
	key := strings.ReplaceAll(topic, "/", ".")
	return strings.ReplaceAll(key, "+", "*")
}

func topicFromRoutingKey(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

// Connect dials RabbitMQ with bounded retries, then binds every recorded subscription
func (r *AMQPBus) Connect(ctx context.Context) error {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.isClosing = false
	r.mu.Unlock()

	if err := r.connect(ctx); err != nil {
		r.logger.Warn("RabbitMQ bus running in degraded mode", zap.Error(err))
		return err
	}

	go r.handleReconnect()
	return nil
}

// connect establishes connection to RabbitMQ and declares the exchange
func (r *AMQPBus) connect(ctx context.Context) error {
	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.config.RabbitMQExchange))

	var conn *amqp.Connection
	err := connectWithRetry(ctx, r.logger, "rabbitmq", r.config.ConnectMaxRetries, r.config.ConnectRetryDelay, func() error {
		var dialErr error
		conn, dialErr = amqp.Dial(r.config.RabbitMQURL)
		return dialErr
	})
	if err != nil {
		return err
	}

	r.logger.Info("Connected to RabbitMQ successfully")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Set QoS (prefetch count)
	if err := channel.Qos(10, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// amq.* exchanges are predeclared by the broker and cannot be redeclared by clients
	if !strings.HasPrefix(r.config.RabbitMQExchange, "amq.") {
		err = channel.ExchangeDeclare(
			r.config.RabbitMQExchange, // name
			"topic",                   // type
			true,                      // durable
			false,                     // auto-deleted
			false,                     // internal
			false,                     // no-wait
			nil,                       // arguments
		)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
		r.logger.Info("Exchange declared", zap.String("exchange", r.config.RabbitMQExchange))
	}

	r.mu.Lock()
	r.conn = conn
	r.channel = channel
	subs := append([]amqpSubscription(nil), r.subs...)
	r.mu.Unlock()

	for _, sub := range subs {
		if err := r.bind(sub); err != nil {
			r.logger.Error("Failed to bind subscription",
				zap.String("topic", sub.pattern),
				zap.Error(err))
		}
	}
	return nil
}

// handleReconnect handles automatic reconnection when connection is lost
func (r *AMQPBus) handleReconnect() {
	for {
		r.mu.RLock()
		conn := r.conn
		ctx := r.ctx
		r.mu.RUnlock()

		if conn == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			r.mu.RLock()
			closing := r.isClosing
			r.mu.RUnlock()
			if closing || ctx.Err() != nil {
				r.logger.Info("RabbitMQ connection closed gracefully")
				return
			}

			r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))
		}

		for {
			r.logger.Info("Attempting to reconnect to RabbitMQ...")
			err := r.connect(ctx)
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				break
			}

			r.logger.Error("Failed to reconnect", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// bind declares an exclusive auto-delete queue for one subscription and consumes it
func (r *AMQPBus) bind(sub amqpSubscription) error {
	r.mu.RLock()
	channel := r.channel
	ctx := r.ctx
	r.mu.RUnlock()

	if channel == nil {
		return ErrNotConnected
	}

	queue, err := channel.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	routingKey := amqpRoutingKey(sub.pattern)
	err = channel.QueueBind(
		queue.Name,                // queue name
		routingKey,                // routing key
		r.config.RabbitMQExchange, // exchange
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := channel.Consume(
		queue.Name, // queue
		"",         // consumer tag
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	r.logger.Info("Queue bound to exchange",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange),
		zap.String("routing_key", routingKey))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				sub.handler(topicFromRoutingKey(msg.RoutingKey), msg.Body)
			}
		}
	}()
	return nil
}

func (r *AMQPBus) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil && !r.conn.IsClosed() && r.channel != nil && !r.channel.IsClosed()
}

// Publish publishes a message to the exchange using the topic as routing key
func (r *AMQPBus) Publish(topic string, payload []byte) error {
	if !r.IsConnected() {
		r.logger.Debug("Skipping publish while disconnected", zap.String("topic", topic))
		return ErrNotConnected
	}

	r.mu.RLock()
	channel := r.channel
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	err := channel.PublishWithContext(ctx,
		r.config.RabbitMQExchange, // exchange
		amqpRoutingKey(topic),     // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
			Timestamp:   time.Now(),
			AppId:       r.name,
		},
	)
	if err != nil {
		metrics.PublishFailures.WithLabelValues("amqp").Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe records the subscription and binds it immediately when connected
func (r *AMQPBus) Subscribe(pattern string, handler MessageHandler) error {
	sub := amqpSubscription{pattern: pattern, handler: guardHandler(r.logger, nil, handler)}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	if !r.IsConnected() {
		return nil
	}
	return r.bind(sub)
}

// Disconnect gracefully closes RabbitMQ connection
func (r *AMQPBus) Disconnect() error {
	r.mu.Lock()
	r.isClosing = true
	if r.cancel != nil {
		r.cancel()
	}
	channel, conn := r.channel, r.conn
	r.channel, r.conn = nil, nil
	r.mu.Unlock()

	r.logger.Info("Closing RabbitMQ connection")

	if channel != nil {
		if err := channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
