package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/hashicorp/go-multierror"

	"github.com/couchcryptid/forecast-etl-service/internal/config"
	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

const (
	qos            = 1
	publishTimeout = 10 * time.Second
)

// Publisher mirrors points to an MQTT broker, one JSON message per point on
// {prefix}/{location}/{measurement}.
// It implements pipeline.PointWriter.
type Publisher struct {
	client      paho.Client
	topicPrefix string
	logger      *slog.Logger
}

// NewPublisher connects to the configured broker.
func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if err := connect(client, publishTimeout); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	return newPublisher(client, cfg.TopicPrefix, logger), nil
}

// connect waits for the first connection. On failure the client is
// disconnected so connect-retry stops in the background.
func connect(client paho.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return errors.New("timed out")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return err
	}
	return nil
}

func newPublisher(client paho.Client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, topicPrefix: prefix, logger: logger}
}

// WritePoints publishes every point and waits for each acknowledgement.
// Failed publishes are collected; the rest of the batch is still sent.
func (p *Publisher) WritePoints(ctx context.Context, points []domain.Point) error {
	var result *multierror.Error
	for i := range points {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if err := p.publish(points[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (p *Publisher) publish(pt domain.Point) error {
	payload, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("serialize point: %w", err)
	}

	topic := p.Topic(pt)
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// topicEscaper replaces the level separator and wildcards, which are not
// allowed inside a single topic level.
var topicEscaper = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topic returns the topic a point is published on. The location name always
// occupies exactly one topic level.
func (p *Publisher) Topic(pt domain.Point) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, topicEscaper.Replace(pt.Tags[domain.TagLocation]), pt.Measurement)
}

func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
