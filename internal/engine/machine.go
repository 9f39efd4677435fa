package engine

import (
	"context"
	"fmt"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// maxEntryChain bounds how many transient entry actions one turn may chain
// through before the machine declares a wiring defect.
const maxEntryChain = 8

// Turn carries everything one dialogue turn needs: the incoming message, its
// classification, the user's context, and the replies accumulated so far.
type Turn struct {
	Message        domain.IncomingMessage
	Classification Classification
	Context        *domain.Context

	replies []domain.OutgoingMessage
}

// Reply appends an outgoing message addressed to the turn's user.
func (t *Turn) Reply(text string, quickReplies ...domain.QuickReply) {
	t.replies = append(t.replies, domain.OutgoingMessage{
		Channel:      t.Context.Channel,
		RecipientID:  t.Context.UserID,
		Text:         text,
		QuickReplies: quickReplies,
	})
}

// Replies returns the outgoing messages accumulated during the turn.
func (t *Turn) Replies() []domain.OutgoingMessage {
	return t.replies
}

// HandlerFunc implements the business behavior of one transition. It mutates
// the turn's context, emits replies, and returns the next machine state.
// Collaborator failures are recovered inside the handler; a returned error
// signals a wiring defect, never a user-facing condition.
type HandlerFunc func(ctx context.Context, t *Turn) (domain.MachineState, error)

// Machine dispatches (state, intent) pairs to bound handlers through a
// transition table. States may additionally carry an entry action that runs
// whenever the state is entered from another state; entry actions chain until
// the machine comes to rest.
type Machine struct {
	transitions map[domain.MachineState]map[Intent]HandlerFunc
	fallbacks   map[domain.MachineState]HandlerFunc
	onEnter     map[domain.MachineState]HandlerFunc
}

func NewMachine() *Machine {
	return &Machine{
		transitions: make(map[domain.MachineState]map[Intent]HandlerFunc),
		fallbacks:   make(map[domain.MachineState]HandlerFunc),
		onEnter:     make(map[domain.MachineState]HandlerFunc),
	}
}

// Handle binds a handler to one (state, intent) pair.
func (m *Machine) Handle(state domain.MachineState, intent Intent, fn HandlerFunc) {
	byIntent, ok := m.transitions[state]
	if !ok {
		byIntent = make(map[Intent]HandlerFunc)
		m.transitions[state] = byIntent
	}
	byIntent[intent] = fn
}

// HandleAny binds a fallback handler covering every intent not explicitly
// bound for the state.
func (m *Machine) HandleAny(state domain.MachineState, fn HandlerFunc) {
	m.fallbacks[state] = fn
}

// OnEnter binds an entry action that runs when the state is entered from a
// different state.
func (m *Machine) OnEnter(state domain.MachineState, fn HandlerFunc) {
	m.onEnter[state] = fn
}

// Validate checks transition totality: every (state, intent) pair must
// resolve to a handler, directly or through the state's fallback. An
// unmapped pair is a design defect surfaced at construction, not a runtime
// branch to silently ignore.
func (m *Machine) Validate() error {
	for _, state := range domain.AllStates() {
		for _, intent := range AllIntents() {
			if _, ok := m.handlerFor(state, intent); !ok {
				return fmt.Errorf("no transition defined for state %s on intent %s", state, intent)
			}
		}
	}
	return nil
}

func (m *Machine) handlerFor(state domain.MachineState, intent Intent) (HandlerFunc, bool) {
	if byIntent, ok := m.transitions[state]; ok {
		if fn, ok := byIntent[intent]; ok {
			return fn, true
		}
	}
	fn, ok := m.fallbacks[state]
	return fn, ok
}

// Run executes one turn: the handler bound to the current (state, intent)
// pair, followed by the entry actions of any transient states it transitions
// through, until the machine rests.
func (m *Machine) Run(ctx context.Context, t *Turn) error {
	fn, ok := m.handlerFor(t.Context.State, t.Classification.Intent)
	if !ok {
		return fmt.Errorf("no transition from state %s on intent %s", t.Context.State, t.Classification.Intent)
	}

	next, err := fn(ctx, t)
	if err != nil {
		return err
	}

	for depth := 0; depth < maxEntryChain; depth++ {
		prev := t.Context.State
		t.Context.State = next

		enter, ok := m.onEnter[next]
		if !ok || next == prev {
			return nil
		}
		next, err = enter(ctx, t)
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("entry-action chain exceeded %d steps at state %s", maxEntryChain, t.Context.State)
}
