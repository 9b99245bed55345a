// Package broker wraps watermill-amqp behind the small surface the pipeline
// needs: per-exchange topic publishers and bounded-prefetch drain subscribers
// sharing one connection.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/attendify/syncbridge/internal/ids"
	configpkg "github.com/attendify/syncbridge/internal/pipeline/config"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
)

// Factory seams for testing, following the usual override pattern.
var (
	ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

// marshaler stamps every publishing with the wire content type and persistent
// delivery, matching what downstream consumers expect.
var marshaler = amqp.DefaultMarshaler{
	PostprocessPublishing: func(publishing amqp091.Publishing) amqp091.Publishing {
		publishing.ContentType = "text/xml"
		publishing.DeliveryMode = amqp091.Persistent
		return publishing
	},
}

// Client owns the AMQP connection and hands out publishers and subscribers
// on top of it. The connection is established lazily on first use.
type Client struct {
	uri      string
	prefetch int
	logger   watermill.LoggerAdapter

	mu         sync.Mutex
	conn       *amqp.ConnectionWrapper
	publishers map[string]message.Publisher
}

// NewClient builds a client from the pipeline configuration. No I/O happens
// until the first Publish or Subscriber call.
func NewClient(conf *configpkg.Config, log loggingpkg.ServiceLogger) *Client {
	return &Client{
		uri:        conf.AMQPURI(),
		prefetch:   conf.PrefetchCount,
		logger:     loggingpkg.NewWatermillAdapter(log),
		publishers: map[string]message.Publisher{},
	}
}

func (c *Client) connection() (*amqp.ConnectionWrapper, error) {
	if c.conn != nil && c.conn.IsConnected() {
		return c.conn, nil
	}
	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   c.uri,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) publisherConfig(exchange string) amqp.Config {
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: c.uri},
		Marshaler:  marshaler,
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(topic string) string { return exchange },
			Type:         exchangeKind(exchange),
			Durable:      true,
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

func (c *Client) subscriberConfig(binding Binding) amqp.Config {
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: c.uri},
		Marshaler:  marshaler,
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(topic string) string { return binding.Exchange },
			Type:         exchangeKind(binding.Exchange),
			Durable:      true,
		},
		Queue: amqp.QueueConfig{
			GenerateName: amqp.GenerateQueueNameConstant(binding.Queue),
			Durable:      true,
		},
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(topic string) string { return binding.RoutingKey },
		},
		Consume: amqp.ConsumeConfig{
			Qos: amqp.QosConfig{PrefetchCount: c.prefetch},
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

func (c *Client) publisher(exchange string) (message.Publisher, error) {
	if pub, ok := c.publishers[exchange]; ok {
		return pub, nil
	}
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	pub, err := PublisherFactory(c.publisherConfig(exchange), c.logger, conn)
	if err != nil {
		return nil, fmt.Errorf("broker publisher for %s: %w", exchange, err)
	}
	c.publishers[exchange] = pub
	return pub, nil
}

// Publish sends one message body to the target's exchange with its routing
// key. The exchange is declared durably on first use.
func (c *Client) Publish(ctx context.Context, target Target, body []byte) error {
	c.mu.Lock()
	pub, err := c.publisher(target.Exchange)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	msg := message.NewMessage(ids.NewToken(), body)
	msg.SetContext(ctx)
	if err := pub.Publish(target.RoutingKey, msg); err != nil {
		return fmt.Errorf("broker publish %s/%s: %w", target.Exchange, target.RoutingKey, err)
	}
	return nil
}

// Subscriber opens a subscriber for the binding's queue with the configured
// prefetch bound. Subscribing declares the exchange, queue, and binding; the
// declare is idempotent and safe to repeat every drain run.
func (c *Client) Subscriber(binding Binding) (message.Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	sub, err := SubscriberFactory(c.subscriberConfig(binding), c.logger, conn)
	if err != nil {
		return nil, fmt.Errorf("broker subscriber for %s: %w", binding.Queue, err)
	}
	return sub, nil
}

// Close tears down the publishers and the shared connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for exchange, pub := range c.publishers {
		if err := pub.Close(); err != nil {
			c.logger.Error("closing publisher", err, watermill.LogFields{"exchange": exchange})
		}
	}
	c.publishers = map[string]message.Publisher{}

	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}
