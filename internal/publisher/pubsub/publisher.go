// Package pubsub publishes acquisition events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Config names the project and the default topic.
type Config struct {
	ProjectID string
	TopicID   string
	// Endpoint overrides the Pub/Sub endpoint, e.g. an emulator.
	Endpoint string
}

// Publisher wraps a Pub/Sub client and caches topic handles.
type Publisher struct {
	client       *pubsub.Client
	defaultTopic string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewClient dials Pub/Sub and verifies the default topic exists.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Publisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client, cfg.TopicID)
	if cfg.TopicID != "" {
		ok, err := client.Topic(cfg.TopicID).Exists(ctx)
		if err == nil && !ok {
			err = fmt.Errorf("topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
		}
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("check pubsub topic: %w", err)
		}
	}
	return p, nil
}

// New wraps an existing client. defaultTopic is used when Publish gets an empty topic.
func New(client *pubsub.Client, defaultTopic string) *Publisher {
	return &Publisher{
		client:       client,
		defaultTopic: defaultTopic,
		topics:       make(map[string]*pubsub.Topic),
	}
}

// Publish marshals the payload to JSON and waits for the server to ack it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	t, err := p.topic(topic)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id, err := t.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) (*pubsub.Topic, error) {
	if name == "" {
		name = p.defaultTopic
	}
	if name == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t, nil
}

// Close flushes pending publishes and closes the client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
