package engine

import (
	"context"
	"testing"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

func stay(state domain.MachineState) HandlerFunc {
	return func(ctx context.Context, t *Turn) (domain.MachineState, error) {
		return state, nil
	}
}

func newTurn(state domain.MachineState, intent Intent) *Turn {
	return &Turn{
		Classification: Classification{Intent: intent},
		Context:        &domain.Context{UserID: "u1", State: state},
	}
}

func TestMachine_ValidateRejectsPartialTable(t *testing.T) {
	m := NewMachine()
	m.Handle(domain.StateWelcome, IntentText, stay(domain.StateWelcome))

	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for a partial transition table")
	}
}

func TestMachine_ValidateAcceptsFallbackCoverage(t *testing.T) {
	m := NewMachine()
	for _, s := range domain.AllStates() {
		m.HandleAny(s, stay(s))
	}

	if err := m.Validate(); err != nil {
		t.Fatalf("expected fallback-covered table to validate, got %v", err)
	}
}

func TestMachine_ExplicitBindingWinsOverFallback(t *testing.T) {
	m := NewMachine()
	for _, s := range domain.AllStates() {
		m.HandleAny(s, stay(domain.StateWelcome))
	}
	m.Handle(domain.StateWelcome, IntentText, stay(domain.StateWaitForAction))

	turn := newTurn(domain.StateWelcome, IntentText)
	if err := m.Run(context.Background(), turn); err != nil {
		t.Fatal(err)
	}
	if turn.Context.State != domain.StateWaitForAction {
		t.Errorf("state = %v, want %v", turn.Context.State, domain.StateWaitForAction)
	}
}

func TestMachine_EntryActionsChainUntilRest(t *testing.T) {
	m := NewMachine()
	m.Handle(domain.StateWelcome, IntentText, stay(domain.StateNotRecognized))
	m.OnEnter(domain.StateNotRecognized, stay(domain.StateWaitForAction))
	m.OnEnter(domain.StateWaitForAction, stay(domain.StateWaitForAction))

	turn := newTurn(domain.StateWelcome, IntentText)
	if err := m.Run(context.Background(), turn); err != nil {
		t.Fatal(err)
	}
	if turn.Context.State != domain.StateWaitForAction {
		t.Errorf("state after chained entry actions = %v, want %v", turn.Context.State, domain.StateWaitForAction)
	}
}

func TestMachine_EntryChainOverflowFails(t *testing.T) {
	m := NewMachine()
	m.Handle(domain.StateWelcome, IntentText, stay(domain.StateNotRecognized))
	// Two entry actions bouncing between each other never rest.
	m.OnEnter(domain.StateNotRecognized, stay(domain.StateDisplayResults))
	m.OnEnter(domain.StateDisplayResults, stay(domain.StateNotRecognized))

	turn := newTurn(domain.StateWelcome, IntentText)
	if err := m.Run(context.Background(), turn); err == nil {
		t.Fatal("expected entry-chain overflow error")
	}
}

func TestMachine_MissingTransitionErrors(t *testing.T) {
	m := NewMachine()
	m.Handle(domain.StateWelcome, IntentText, stay(domain.StateWelcome))

	turn := newTurn(domain.StateWelcome, IntentCancel)
	if err := m.Run(context.Background(), turn); err == nil {
		t.Fatal("expected error for unmapped (state, intent) pair")
	}
}
