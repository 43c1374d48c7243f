package conductor

import (
	"log/slog"
	"time"

	"github.com/ensemblehq/conductor/logging"
	"github.com/ensemblehq/conductor/service/agent"
	"github.com/ensemblehq/conductor/service/agent/approval"
	"github.com/ensemblehq/conductor/service/agent/nop"
	"github.com/ensemblehq/conductor/service/agent/printer"
	astorage "github.com/ensemblehq/conductor/service/agent/storage"
	"github.com/ensemblehq/conductor/service/dao"
	"github.com/ensemblehq/conductor/service/dao/ensemble"
	"github.com/ensemblehq/conductor/service/executor"
	"github.com/ensemblehq/conductor/service/notification"
	"github.com/ensemblehq/conductor/service/repository"
	rmemory "github.com/ensemblehq/conductor/service/repository/memory"
	"github.com/ensemblehq/conductor/service/resumption"
	smemory "github.com/ensemblehq/conductor/service/resumption/memory"
	"github.com/ensemblehq/conductor/service/status"
)

// Service assembles the conductor engine: the ensemble parser, the agent
// registry with built-ins, the executor and its collaborators.
type Service struct {
	runtime *Runtime

	config       *Config
	logger       *slog.Logger
	repository   repository.Service
	resumption   resumption.Service
	statusStore  dao.Service[string, status.Record]
	notification *notification.Service
	agents       []agent.Agent
	evaluators   []executor.Evaluator
	webhooks     []string
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	if err := s.config.Validate(); err != nil {
		return err
	}

	parser, err := ensemble.New()
	if err != nil {
		return err
	}

	tracker := status.NewTracker(s.statusStore,
		status.WithGraceDelay(s.config.Status.graceDelay()),
		status.WithLogger(s.logger))

	registry := agent.NewRegistry(
		nop.New(),
		printer.New(),
		astorage.New(s.repository),
		approval.New(),
	)

	exec := executor.New(
		executor.WithRegistry(registry),
		executor.WithResumption(s.resumption),
		executor.WithTracker(tracker),
		executor.WithLogger(s.logger),
		executor.WithDefaultTimeout(s.config.Executor.stepTimeout()),
	)
	for _, a := range s.agents {
		exec.RegisterAgent(a)
	}
	for _, e := range s.evaluators {
		exec.RegisterEvaluator(e)
	}

	if s.notification == nil {
		s.notification = notification.New(notification.Config{
			WorkerCount:    s.config.Notification.Workers,
			MaxRetries:     s.config.Notification.MaxRetries,
			RetryDelay:     s.config.Notification.retryDelay(),
			RequestTimeout: s.config.Notification.requestTimeout(),
		}, notification.WithLogger(s.logger))
	}
	for _, URL := range s.webhooks {
		s.notification.RegisterWebhook(URL)
	}

	s.runtime = &Runtime{
		parser:       parser,
		executor:     exec,
		tracker:      tracker,
		resumption:   s.resumption,
		notification: s.notification,
		logger:       s.logger,
	}
	return nil
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.repository == nil {
		s.repository = rmemory.New()
	}
	if s.resumption == nil {
		s.resumption = smemory.New()
	}
	if s.statusStore == nil {
		s.statusStore = status.NewStore()
	}
}

// Runtime returns the execution runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// RegisterAgent adds a user-defined agent after construction.
func (s *Service) RegisterAgent(a agent.Agent) {
	s.runtime.executor.RegisterAgent(a)
}

// RegisterEvaluator adds a named scoring evaluator after construction.
func (s *Service) RegisterEvaluator(e executor.Evaluator) {
	s.runtime.executor.RegisterEvaluator(e)
}

// New creates a conductor service.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
