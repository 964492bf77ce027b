package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedTurns is wrapped by every error returned from DecodeTurns and
// Transcript.Replace when the supplied turns are not valid conversation data.
var ErrMalformedTurns = errors.New("domain: malformed turns")

// Transcript is the ordered turn history of one session. The first turn is the
// system turn fixed at creation; it is never removed and never exported.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript holding only the system turn.
func NewTranscript(systemPrompt string) *Transcript {
	return &Transcript{turns: []Turn{SystemTurn(systemPrompt)}}
}

// RestoreTranscript rebuilds a transcript from a full turn list, system turn
// included, as produced by Turns. It is used by session stores.
func RestoreTranscript(turns []Turn) (*Transcript, error) {
	if len(turns) == 0 || turns[0].Role != RoleSystem {
		return nil, fmt.Errorf("%w: first turn must be the system turn", ErrMalformedTurns)
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return &Transcript{turns: cp}, nil
}

// Append adds turn to the end of the transcript.
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Clear truncates the transcript back to the system turn.
func (t *Transcript) Clear() {
	t.turns = t.turns[:1:1]
}

// Truncate drops every turn after the first n. n is clamped to [1, Len()].
func (t *Transcript) Truncate(n int) {
	if n < 1 {
		n = 1
	}
	if n < len(t.turns) {
		t.turns = t.turns[:n:n]
	}
}

// Replace sets the transcript to the system turn followed by turns. The
// transcript is left untouched when turns fails validation.
func (t *Transcript) Replace(turns []Turn) error {
	for i, turn := range turns {
		if err := validateImported(turn); err != nil {
			return fmt.Errorf("%w: turn %d: %v", ErrMalformedTurns, i, err)
		}
	}
	next := make([]Turn, 0, len(turns)+1)
	next = append(next, t.turns[0])
	next = append(next, turns...)
	t.turns = next
	return nil
}

// Latest scans from the end and returns the most recent turn with role.
func (t *Transcript) Latest(role Role) (Turn, bool) {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == role {
			return t.turns[i], true
		}
	}
	return Turn{}, false
}

// Turns returns a copy of every turn, system turn first.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Conversation returns a copy of the turns after the system turn.
func (t *Transcript) Conversation() []Turn {
	out := make([]Turn, len(t.turns)-1)
	copy(out, t.turns[1:])
	return out
}

func (t *Transcript) Len() int { return len(t.turns) }

func (t *Transcript) SystemPrompt() string { return t.turns[0].Content }

func validateImported(turn Turn) error {
	switch turn.Role {
	case RoleUser, RoleAssistant:
		return nil
	case RoleSystem:
		return errors.New("system turns cannot be imported")
	default:
		return fmt.Errorf("unknown role %q", turn.Role)
	}
}

// DecodeTurns parses a JSON list of {role, content} objects. Both fields must be
// present and hold strings; other fields are ignored.
func DecodeTurns(data []byte) ([]Turn, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTurns, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedTurns)
	}
	turns := make([]Turn, 0, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, fmt.Errorf("%w: turn %d is not an object", ErrMalformedTurns, i)
		}
		role, err := stringField(obj, "role")
		if err != nil {
			return nil, fmt.Errorf("%w: turn %d: %v", ErrMalformedTurns, i, err)
		}
		content, err := stringField(obj, "content")
		if err != nil {
			return nil, fmt.Errorf("%w: turn %d: %v", ErrMalformedTurns, i, err)
		}
		turns = append(turns, Turn{Role: Role(role), Content: content})
	}
	return turns, nil
}

func stringField(obj map[string]json.RawMessage, key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	var s string
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return "", fmt.Errorf("field %q is null", key)
	}
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	return s, nil
}
