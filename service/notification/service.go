package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/logging"
	"github.com/ensemblehq/conductor/service/event"
	"github.com/ensemblehq/conductor/service/messaging"
	"github.com/ensemblehq/conductor/service/messaging/memory"
)

// Config represents notification dispatcher configuration
type Config struct {
	// WorkerCount is the number of workers delivering notifications
	WorkerCount int

	// MaxRetries is the maximum number of delivery retries per notification
	MaxRetries int

	// RetryDelay is the base delay between delivery attempts, doubled per
	// retry
	RetryDelay time.Duration

	// RequestTimeout bounds one HTTP delivery attempt
	RequestTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    3,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
	}
}

// Notification is one webhook delivery: an execution event posted as JSON.
type Notification struct {
	URL   string                  `json:"url"`
	Event *event.Event[ExecEvent] `json:"event"`
}

// ExecEvent is the payload shape delivered to webhooks.
type ExecEvent struct {
	Status string      `json:"status"`
	Detail interface{} `json:"detail,omitempty"`
}

// Service delivers execution events to registered webhook URLs through a
// bounded worker pool. A failing endpoint retries with doubling delay in
// isolation; it never blocks deliveries to other endpoints.
type Service struct {
	config Config
	queue  messaging.Queue[Notification]
	client *http.Client
	logger *slog.Logger

	mu       sync.RWMutex
	webhooks []string

	workerWg sync.WaitGroup
	cancel   context.CancelFunc
}

// Option customises the dispatcher.
type Option func(*Service)

// WithClient overrides the HTTP client, used by tests.
func WithClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a notification dispatcher.
func New(config Config, options ...Option) *Service {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	s := &Service{
		config: config,
		queue:  memory.NewQueue[Notification](memory.DefaultConfig()),
		client: &http.Client{Timeout: config.RequestTimeout},
		logger: logging.Default(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// RegisterWebhook adds a URL notified of every published event.
func (s *Service) RegisterWebhook(URL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks = append(s.webhooks, URL)
}

// Publish fans an event out to all registered webhooks.
func (s *Service) Publish(ctx context.Context, evt *event.Event[ExecEvent]) error {
	s.mu.RLock()
	webhooks := append([]string(nil), s.webhooks...)
	s.mu.RUnlock()
	for _, URL := range webhooks {
		if err := s.queue.Publish(ctx, &Notification{URL: URL, Event: evt}); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the delivery workers.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.WorkerCount; i++ {
		s.workerWg.Add(1)
		go s.worker(ctx, i)
	}
}

// Shutdown stops the workers and waits for in-flight deliveries.
func (s *Service) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.workerWg.Wait()
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.workerWg.Done()
	for {
		msg, err := s.queue.Consume(ctx)
		if err != nil {
			return
		}
		notification := msg.T()
		if err := s.deliver(ctx, notification); err != nil {
			s.logger.Warn("webhook delivery failed",
				"worker", id, "url", notification.URL, "error", err)
			_ = msg.Nack(err)
			continue
		}
		_ = msg.Ack()
	}
}

// deliver posts the event, retrying with doubling delay up to MaxRetries.
func (s *Service) deliver(ctx context.Context, notification *Notification) error {
	body, err := json.Marshal(notification.Event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	delay := s.config.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := clock.Sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
		lastErr = s.post(ctx, notification.URL, body)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *Service) post(ctx context.Context, URL string, body []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %v", response.StatusCode)
	}
	return nil
}
