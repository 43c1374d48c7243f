package status

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/logging"
	"github.com/ensemblehq/conductor/service/dao"
	"github.com/ensemblehq/conductor/service/dao/store"
)

// NewStore returns the default in-memory record store, keyed by execution id
// and filterable by state.
func NewStore() dao.Service[string, Record] {
	return store.NewMemoryStore[string, Record](
		func(r *Record) string { return r.ID },
		matchRecord,
	)
}

func matchRecord(r *Record, parameter *dao.Parameter) bool {
	if parameter.Name != "state" {
		return true
	}
	switch value := parameter.Value.(type) {
	case string:
		return string(r.State) == value
	case []string:
		for _, candidate := range value {
			if string(r.State) == candidate {
				return true
			}
		}
		return false
	}
	return true
}

// ErrUnknownExecution is returned when the execution id is not tracked.
var ErrUnknownExecution = errors.New("status: unknown execution")

const subscriberBuffer = 32

// Tracker maintains live execution status, one single-writer actor per
// execution id. All mutations are funnelled through the actor's mailbox, so
// the event log stays strongly ordered; the full record is persisted through
// the supplied store after every transition.
type Tracker struct {
	mu     sync.Mutex
	actors map[string]*actor
	store  dao.Service[string, Record]
	grace  time.Duration
	logger *slog.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithGraceDelay overrides how long subscriber channels stay open after a
// terminal transition, letting in-flight sends drain.
func WithGraceDelay(delay time.Duration) Option {
	return func(t *Tracker) { t.grace = delay }
}

// WithLogger overrides the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a tracker persisting records through store.
func NewTracker(store dao.Service[string, Record], options ...Option) *Tracker {
	t := &Tracker{
		actors: map[string]*actor{},
		store:  store,
		grace:  100 * time.Millisecond,
		logger: logging.Default(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Start begins tracking an execution in state running. Starting an id whose
// record was parked on suspension rehydrates the persisted record, so the
// event log spans the interruption.
func (t *Tracker) Start(ctx context.Context, id, ensemble string, totalSteps int) error {
	t.mu.Lock()
	if _, ok := t.actors[id]; ok {
		t.mu.Unlock()
		return errors.New("status: execution already tracked: " + id)
	}
	a := newActor(id, ensemble, totalSteps, t.store, t.grace, t.logger)
	if previous, err := t.store.Load(ctx, id); err == nil && !previous.State.IsTerminal() {
		a.record = previous.Clone()
	}
	t.actors[id] = a
	go a.run()
	t.mu.Unlock()
	return t.send(ctx, id, &Event{Type: EventStarted, At: clock.Now()})
}

// Park releases the actor of a suspended execution while keeping its
// persisted record; a later Start with the same id picks the record back up.
func (t *Tracker) Park(ctx context.Context, id string) error {
	t.mu.Lock()
	a, ok := t.actors[id]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownExecution
	}
	done := make(chan struct{})
	select {
	case a.commands <- command{park: true, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.mu.Lock()
	delete(t.actors, id)
	t.mu.Unlock()
	return nil
}

// Progress records a completed step.
func (t *Tracker) Progress(ctx context.Context, id, step string, index int, output interface{}) error {
	return t.send(ctx, id, &Event{Type: EventProgress, Step: step, Index: index, Output: output, At: clock.Now()})
}

// Complete marks the execution finished with its final result.
func (t *Tracker) Complete(ctx context.Context, id string, result interface{}) error {
	return t.send(ctx, id, &Event{Type: EventCompleted, Output: result, At: clock.Now()})
}

// Fail marks the execution failed.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return t.send(ctx, id, &Event{Type: EventFailed, Error: message, At: clock.Now()})
}

// Cancel marks the execution cancelled.
func (t *Tracker) Cancel(ctx context.Context, id string) error {
	return t.send(ctx, id, &Event{Type: EventCancelled, At: clock.Now()})
}

// Subscribe attaches to an execution's event stream. The returned record is
// the state snapshot at attach time; every subsequent event is pushed to the
// channel, which closes shortly after the execution reaches a terminal
// state. Cancel the supplied context to detach early.
func (t *Tracker) Subscribe(ctx context.Context, id string) (*Record, <-chan Event, error) {
	t.mu.Lock()
	a, ok := t.actors[id]
	t.mu.Unlock()
	if !ok {
		// Terminal executions are no longer actors; serve the persisted
		// record with an already-closed stream.
		record, err := t.store.Load(ctx, id)
		if err != nil {
			return nil, nil, ErrUnknownExecution
		}
		events := make(chan Event)
		close(events)
		return record, events, nil
	}
	reply := make(chan subscription, 1)
	select {
	case a.commands <- command{subscribe: reply}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case sub := <-reply:
		return sub.snapshot, sub.events, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// List returns the persisted records, filtered to the given states when any
// are supplied.
func (t *Tracker) List(ctx context.Context, states ...State) ([]*Record, error) {
	var parameters []*dao.Parameter
	if len(states) > 0 {
		values := make([]string, 0, len(states))
		for _, state := range states {
			values = append(values, string(state))
		}
		parameters = append(parameters, dao.NewParameter("state", values...))
	}
	records, err := t.store.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(records))
	for _, record := range records {
		out = append(out, record.Clone())
	}
	return out, nil
}

// Status returns the current persisted record for an execution.
func (t *Tracker) Status(ctx context.Context, id string) (*Record, error) {
	record, err := t.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, ErrUnknownExecution
		}
		return nil, err
	}
	return record.Clone(), nil
}

func (t *Tracker) send(ctx context.Context, id string, event *Event) error {
	t.mu.Lock()
	a, ok := t.actors[id]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownExecution
	}
	done := make(chan struct{})
	select {
	case a.commands <- command{event: event, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if terminalEvent(event.Type) {
		t.mu.Lock()
		delete(t.actors, id)
		t.mu.Unlock()
	}
	return nil
}

func terminalEvent(eventType string) bool {
	switch eventType {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	}
	return false
}

type subscription struct {
	snapshot *Record
	events   chan Event
}

type command struct {
	event     *Event
	done      chan struct{}
	subscribe chan subscription
	park      bool
}

// actor is the single writer for one execution's record. Only its goroutine
// touches the record, the subscriber list and the store entry.
type actor struct {
	id          string
	commands    chan command
	record      *Record
	subscribers []chan Event
	store       dao.Service[string, Record]
	grace       time.Duration
	logger      *slog.Logger
}

func newActor(id, ensemble string, totalSteps int, store dao.Service[string, Record], grace time.Duration, logger *slog.Logger) *actor {
	return &actor{
		id:       id,
		commands: make(chan command, 16),
		record: &Record{
			ID:         id,
			Ensemble:   ensemble,
			State:      StatePending,
			TotalSteps: totalSteps,
			UpdatedAt:  clock.Now(),
		},
		store:  store,
		grace:  grace,
		logger: logger,
	}
}

func (a *actor) run() {
	for cmd := range a.commands {
		if cmd.subscribe != nil {
			events := make(chan Event, subscriberBuffer)
			a.subscribers = append(a.subscribers, events)
			cmd.subscribe <- subscription{snapshot: a.record.Clone(), events: events}
			continue
		}
		if cmd.park {
			a.persist()
			close(cmd.done)
			a.drainThenClose()
			return
		}
		a.apply(cmd.event)
		a.persist()
		a.broadcast(*cmd.event)
		close(cmd.done)
		if a.record.State.IsTerminal() {
			a.drainThenClose()
			return
		}
	}
}

func (a *actor) apply(event *Event) {
	switch event.Type {
	case EventStarted:
		a.record.State = StateRunning
	case EventProgress:
		a.record.CompletedSteps++
	case EventCompleted:
		a.record.State = StateCompleted
		a.record.Output = event.Output
	case EventFailed:
		a.record.State = StateFailed
		a.record.Error = event.Error
	case EventCancelled:
		a.record.State = StateCancelled
	}
	a.record.Events = append(a.record.Events, *event)
	a.record.UpdatedAt = event.At
}

func (a *actor) persist() {
	if err := a.store.Save(context.Background(), a.record.Clone()); err != nil {
		a.logger.Warn("failed to persist execution status", "id", a.id, "error", err)
	}
}

// broadcast pushes an event to every subscriber; a subscriber whose buffer
// is full is pruned rather than allowed to stall the actor.
func (a *actor) broadcast(event Event) {
	kept := a.subscribers[:0]
	for _, events := range a.subscribers {
		select {
		case events <- event:
			kept = append(kept, events)
		default:
			a.logger.Warn("pruning slow status subscriber", "id", a.id)
			close(events)
		}
	}
	a.subscribers = kept
}

// drainThenClose keeps answering late subscribe requests for the grace
// period, then closes every subscriber channel.
func (a *actor) drainThenClose() {
	timer := time.NewTimer(a.grace)
	defer timer.Stop()
	for {
		select {
		case cmd := <-a.commands:
			if cmd.subscribe != nil {
				events := make(chan Event)
				close(events)
				cmd.subscribe <- subscription{snapshot: a.record.Clone(), events: events}
				continue
			}
			// Late events after a terminal transition are dropped.
			close(cmd.done)
		case <-timer.C:
			for _, events := range a.subscribers {
				close(events)
			}
			return
		}
	}
}
