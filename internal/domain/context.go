package domain

import (
	"context"
	"time"
)

// MachineState is the dialogue's current phase. Exactly one state is active
// per Context at any time.
type MachineState string

const (
	StateWelcome               MachineState = "WELCOME"
	StateWaitForAction         MachineState = "WAIT_FOR_ACTION"
	StateNotRecognized         MachineState = "NOT_RECOGNIZED"
	StateReportPromptImage     MachineState = "REPORT_PROMPT_IMAGE"
	StateDisplayResults        MachineState = "DISPLAY_RESULTS"
	StateAskForChangesOrAction MachineState = "ASK_FOR_CHANGES_OR_ACTION"
)

// AllStates lists every machine state. The state machine validates transition
// totality against this set at construction time.
func AllStates() []MachineState {
	return []MachineState{
		StateWelcome,
		StateWaitForAction,
		StateNotRecognized,
		StateReportPromptImage,
		StateDisplayResults,
		StateAskForChangesOrAction,
	}
}

// Context is the per-user conversation state carried between turns.
// Handlers mutate it; the engine persists it after every turn.
type Context struct {
	UserID         string       `json:"user_id"`
	Channel        string       `json:"channel"`
	State          MachineState `json:"state"`
	LastAttachment *Attachment  `json:"last_attachment,omitempty"`
	EANCode        string       `json:"ean_code,omitempty"`
	Result         *Result      `json:"result,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ContextStore holds one Context per user id. Implementations are safe for
// concurrent use; the engine additionally guarantees at most one in-flight
// turn per user id.
type ContextStore interface {
	// Get returns the context for id, or nil when absent.
	Get(ctx context.Context, id string) (*Context, error)
	// GetOrCreate returns the existing context for id, creating one in
	// StateWelcome on first contact. Idempotent.
	GetOrCreate(ctx context.Context, id string) (*Context, error)
	// Save persists the context. The in-memory store treats this as a
	// marker; durable stores write through.
	Save(ctx context.Context, c *Context) error
	// Delete removes the context and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Sweep removes contexts not updated since the given time and returns
	// how many were removed.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}
