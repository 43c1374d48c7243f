package conductor

import (
	"log/slog"

	"github.com/ensemblehq/conductor/service/agent"
	"github.com/ensemblehq/conductor/service/dao"
	"github.com/ensemblehq/conductor/service/executor"
	"github.com/ensemblehq/conductor/service/notification"
	"github.com/ensemblehq/conductor/service/repository"
	"github.com/ensemblehq/conductor/service/resumption"
	"github.com/ensemblehq/conductor/service/status"
	"github.com/ensemblehq/conductor/tracing"
)

// Option customises the conductor service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithLogger sets the logger shared by all collaborators.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRepository sets the document store backing the storage agent.
func WithRepository(repo repository.Service) Option {
	return func(s *Service) { s.repository = repo }
}

// WithResumption sets the suspended-execution store.
func WithResumption(service resumption.Service) Option {
	return func(s *Service) { s.resumption = service }
}

// WithStatusStore sets the DAO persisting live execution status records.
func WithStatusStore(store dao.Service[string, status.Record]) Option {
	return func(s *Service) { s.statusStore = store }
}

// WithNotification sets the webhook dispatcher.
func WithNotification(service *notification.Service) Option {
	return func(s *Service) { s.notification = service }
}

// WithAgents registers user-defined agents at construction time.
func WithAgents(agents ...agent.Agent) Option {
	return func(s *Service) { s.agents = append(s.agents, agents...) }
}

// WithEvaluators registers scoring evaluators at construction time.
func WithEvaluators(evaluators ...executor.Evaluator) Option {
	return func(s *Service) { s.evaluators = append(s.evaluators, evaluators...) }
}

// WithWebhooks registers URLs notified of execution events.
func WithWebhooks(URLs ...string) Option {
	return func(s *Service) { s.webhooks = append(s.webhooks, URLs...) }
}

// WithTracing configures OpenTelemetry tracing for the service. If
// outputFile is empty the stdout exporter is used; otherwise traces are
// written to the supplied file path. Safe to call multiple times; the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}
