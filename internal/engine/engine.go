package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/bus"
	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
	"github.com/KlubJagiellonski/pola-facebook/internal/metrics"
)

const defaultConcurrency = 5

// Engine is the conversation orchestrator: it deduplicates inbound events,
// normalizes them, resolves the sender's context, runs the state machine,
// persists the mutated context, and hands replies to the channel adapter.
//
// Deduplication state is scoped per sender. Turns for the same user are
// serialized; unrelated users proceed concurrently and collaborator calls run
// outside any shared lock.
type Engine struct {
	store       domain.ContextStore
	bus         domain.MessageBus
	events      *bus.EventBus
	dispatcher  *Dispatcher
	machine     *Machine
	logger      *slog.Logger
	concurrency int

	dedupMu    sync.Mutex
	lastServed map[string]time.Time

	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex
}

type Config struct {
	Store      domain.ContextStore
	Bus        domain.MessageBus
	Events     *bus.EventBus
	Dispatcher *Dispatcher
	Machine    *Machine
	Logger     *slog.Logger
	// Concurrency caps parallel turns across users (default 5).
	Concurrency int
}

// New validates the machine's transition table and constructs the engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Machine.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Engine{
		store:       cfg.Store,
		bus:         cfg.Bus,
		events:      cfg.Events,
		dispatcher:  cfg.Dispatcher,
		machine:     cfg.Machine,
		logger:      cfg.Logger.With("component", "engine"),
		concurrency: cfg.Concurrency,
		lastServed:  make(map[string]time.Time),
		userLocks:   make(map[string]*sync.Mutex),
	}, nil
}

// Run consumes inbound events from the bus with bounded concurrency until the
// context is cancelled or the bus closes.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("conversation engine started", "concurrency", e.concurrency)

	sem := make(chan struct{}, e.concurrency)
	inbound := e.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("conversation engine stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				e.logger.Info("inbound channel closed, engine stopping")
				return
			}
			sem <- struct{}{}
			go func(ev domain.InboundEvent) {
				defer func() { <-sem }()
				e.HandleEvent(ctx, ev)
			}(ev)
		}
	}
}

// HandleEvent processes one inbound event end to end. No failure escapes to
// the caller; every failure path terminates in a defined state or a discarded
// event.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.InboundEvent) {
	if e.isDuplicate(ev) {
		e.logger.Debug("discarding duplicate event",
			"channel", ev.Channel, "sender", ev.SenderID, "timestamp", ev.Timestamp)
		metrics.DuplicateEvents.Inc()
		if e.events != nil {
			e.events.Emit(bus.Event{
				Type:    bus.EventDuplicate,
				Source:  "engine",
				Payload: map[string]any{"sender": ev.SenderID, "channel": ev.Channel},
			})
		}
		return
	}

	msgs := Normalize(ev, e.logger)
	if len(msgs) == 0 {
		return
	}

	// Best effort: the bus swallows delivery failures.
	e.bus.SendOutbound(domain.OutgoingMessage{
		Channel:     ev.Channel,
		RecipientID: ev.SenderID,
		Action:      domain.ActionMarkSeen,
	})

	for _, msg := range msgs {
		e.runTurn(ctx, msg)
	}
}

// isDuplicate discards events whose timestamp is not newer than the last one
// served for the same sender. Same-timestamp retries count as duplicates.
func (e *Engine) isDuplicate(ev domain.InboundEvent) bool {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()

	last, ok := e.lastServed[ev.SenderID]
	if ok && !ev.Timestamp.After(last) {
		return true
	}
	e.lastServed[ev.SenderID] = ev.Timestamp
	return false
}

// PruneIdle drops dedup and serialization state for senders whose last event
// predates olderThan. Runs alongside the context retention sweep so these
// maps track the stored contexts instead of growing per unique sender
// forever. Returns the number of senders pruned.
func (e *Engine) PruneIdle(olderThan time.Time) int {
	e.dedupMu.Lock()
	var stale []string
	for id, last := range e.lastServed {
		if last.Before(olderThan) {
			stale = append(stale, id)
			delete(e.lastServed, id)
		}
	}
	e.dedupMu.Unlock()

	// A sender idle past the retention window holds no lock; dropping the
	// mutex entry is safe.
	e.locksMu.Lock()
	for _, id := range stale {
		delete(e.userLocks, id)
	}
	e.locksMu.Unlock()

	return len(stale)
}

// lockFor returns the mutex serializing turns for one user.
func (e *Engine) lockFor(userID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.userLocks[userID] = mu
	}
	return mu
}

func (e *Engine) runTurn(ctx context.Context, msg domain.IncomingMessage) {
	mu := e.lockFor(msg.SenderID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := e.store.Get(ctx, msg.SenderID)
	if err != nil {
		e.logger.Error("context load failed", "user", msg.SenderID, "err", err)
		return
	}
	c, err := e.store.GetOrCreate(ctx, msg.SenderID)
	if err != nil {
		e.logger.Error("context create failed", "user", msg.SenderID, "err", err)
		return
	}
	if existing == nil {
		metrics.ContextsCreated.Inc()
		if e.events != nil {
			e.events.Emit(bus.Event{
				Type:    bus.EventContextCreated,
				Source:  "engine",
				Payload: map[string]any{"user": msg.SenderID},
			})
		}
	}
	c.Channel = msg.Channel

	t := &Turn{
		Message:        msg,
		Classification: e.dispatcher.Classify(msg),
		Context:        c,
	}

	if err := e.machine.Run(ctx, t); err != nil {
		// Wiring defect: log it, keep the conversation alive. The user
		// never sees an unhandled failure.
		e.logger.Error("state machine error",
			"user", msg.SenderID, "state", c.State, "intent", t.Classification.Intent, "err", err)
		return
	}

	c.UpdatedAt = time.Now()
	if err := e.store.Save(ctx, c); err != nil {
		e.logger.Error("context save failed", "user", msg.SenderID, "err", err)
	}

	for _, out := range t.Replies() {
		e.bus.SendOutbound(out)
	}

	metrics.TurnsTotal.Inc()
	if e.events != nil {
		e.events.Emit(bus.Event{
			Type:   bus.EventTurnCompleted,
			Source: "engine",
			Payload: map[string]any{
				"user":    msg.SenderID,
				"intent":  string(t.Classification.Intent),
				"state":   string(c.State),
				"replies": len(t.Replies()),
			},
		})
	}
}
