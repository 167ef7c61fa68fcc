package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// State is where a capture session ended up
type State string

const (
	StateReady     State = "ready"
	StateNoAmount  State = "no-amount"
	StateError     State = "error"
	StateTimedOut  State = "timed-out"
	StateCancelled State = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotReady          = errors.New("session is not ready to save")
)

// DraftSaver persists a validated draft and returns the new record's ID
type DraftSaver interface {
	SaveDraft(ctx context.Context, d Draft) (string, error)
}

// Session is the outcome of one reconciliation
type Session struct {
	ID         string      `json:"id"`
	State      State       `json:"state"`
	Source     ChannelName `json:"source,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Message    string      `json:"message,omitempty"`
	Draft      Draft       `json:"draft"`
}

func newSession(state State) *Session {
	return &Session{ID: uuid.NewString(), State: state, Draft: Draft{Source: "OCR"}}
}

func errorSession(source ChannelName, message string) *Session {
	s := newSession(StateError)
	s.Source = source
	s.Message = message
	return s
}

// sessionFromEnvelope applies the envelope decision rules
func sessionFromEnvelope(source ChannelName, env Envelope) *Session {
	switch env.Status {
	case StatusError:
		msg := env.Message
		if msg == "" {
			msg = "extraction failed"
		}
		return errorSession(source, msg)
	case StatusSuccess:
	default:
		return errorSession(source, fmt.Sprintf("unknown envelope status %q", env.Status))
	}

	s := newSession(StateNoAmount)
	s.Source = source
	if env.Data == nil {
		return s
	}

	s.Confidence = env.Data.Confidence
	s.Draft.Merchant = env.Data.Merchant
	s.Draft.Type = env.Data.Type
	if !env.Data.Amount.Usable() {
		return s
	}

	s.State = StateReady
	s.Draft.Amount = AmountText(strconv.FormatFloat(env.Data.Amount.Value, 'f', -1, 64))
	return s
}

// RequestManualEntry lets the user type an amount the extractor missed
func (s *Session) RequestManualEntry() error {
	if s.State != StateNoAmount {
		return fmt.Errorf("%w: manual entry from %s", ErrInvalidTransition, s.State)
	}
	s.State = StateReady
	s.Draft.Amount = ""
	return nil
}

func (s *Session) SetAmount(amount string) {
	s.Draft.Amount = AmountText(amount)
}

func (s *Session) SelectCategory(id string) {
	s.Draft.CategoryID = id
}

// Edit holds user changes to a draft. Nil fields are left alone.
type Edit struct {
	Amount     *AmountText `json:"amount"`
	Merchant   *string     `json:"merchant"`
	CategoryID *string     `json:"categoryId"`
}

// Apply copies the set fields of e into the draft
func (s *Session) Apply(e Edit) {
	if e.Amount != nil {
		s.SetAmount(string(*e.Amount))
	}
	if e.Merchant != nil {
		s.Draft.Merchant = *e.Merchant
	}
	if e.CategoryID != nil {
		s.SelectCategory(*e.CategoryID)
	}
}

// Save validates the draft and hands it to saver
func (s *Session) Save(ctx context.Context, saver DraftSaver) (string, error) {
	if s.State != StateReady {
		return "", fmt.Errorf("%w: state is %s", ErrNotReady, s.State)
	}
	if err := Validate(s.Draft); err != nil {
		return "", err
	}
	id, err := saver.SaveDraft(ctx, s.Draft)
	if err != nil {
		return "", fmt.Errorf("saving draft: %w", err)
	}
	return id, nil
}
