package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Hub owns the channels of every capture scope. A scope is one device or
// one capture screen.
type Hub struct {
	bridge   *Bridge
	slots    Slots
	sessions *SessionStore
	schedule Schedule
}

func NewHub(slots Slots, schedule Schedule) *Hub {
	return &Hub{
		bridge:   NewBridge(),
		slots:    slots,
		sessions: NewSessionStore(DefaultSessionTTL),
		schedule: schedule,
	}
}

// Channels returns the scope's channels in priority order
func (h *Hub) Channels(scope string) []Channel {
	return []Channel{
		h.bridge.Channel(scope),
		&slotChannel{name: OCRResult, slots: h.slots, scope: scope, key: OCRDataKey},
		&slotChannel{name: SharedImage, slots: h.slots, scope: scope, key: SharedImageKey},
	}
}

// PublishBridge hands a serialized envelope to the native bridge
func (h *Hub) PublishBridge(scope string, payload []byte) {
	h.bridge.Publish(scope, payload)
}

// WriteOCR stores a serialized envelope in the OCR result slot
func (h *Hub) WriteOCR(scope string, payload []byte) error {
	return h.slots.Put(scope, OCRDataKey, payload)
}

// WriteEnvelope serializes env into the OCR result slot
func (h *Hub) WriteEnvelope(scope string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return h.WriteOCR(scope, data)
}

// WriteSharedImage stores a serialized image reference
func (h *Hub) WriteSharedImage(scope string, payload []byte) error {
	return h.slots.Put(scope, SharedImageKey, payload)
}

// Clear wipes every channel of scope
func (h *Hub) Clear(scope string) error {
	h.bridge.clear(scope)
	if err := h.slots.Delete(scope, OCRDataKey, SharedImageKey); err != nil {
		return fmt.Errorf("clearing scope %s: %w", scope, err)
	}
	return nil
}

// Reconcile runs a reconciler over the scope's channels. Ready and
// no-amount sessions are kept for ManualEntry and SaveSession.
func (h *Hub) Reconcile(ctx context.Context, scope string) *Session {
	start := time.Now()
	s := NewReconciler(h.schedule, h.Channels(scope)...).Run(ctx)
	h.sessions.Put(scope, s)
	slog.Info("capture reconciled",
		"scope", scope,
		"session", s.ID,
		"state", s.State,
		"source", s.Source,
		"elapsed", time.Since(start))
	return s
}

// Session returns a kept session
func (h *Hub) Session(scope, id string) (Session, error) {
	return h.sessions.Get(scope, id)
}

// ManualEntry moves a no-amount session to ready with an empty amount
func (h *Hub) ManualEntry(scope, id string) (Session, error) {
	return h.sessions.Update(scope, id, func(s *Session) error {
		return s.RequestManualEntry()
	})
}

// SaveSession applies edit, validates the draft and saves it through saver.
// A saved session is forgotten; a failed save leaves it unchanged.
func (h *Hub) SaveSession(ctx context.Context, scope, id string, edit Edit, saver DraftSaver) (string, error) {
	var savedID string
	_, err := h.sessions.Update(scope, id, func(s *Session) error {
		s.Apply(edit)
		var err error
		savedID, err = s.Save(ctx, saver)
		return err
	})
	if err != nil {
		return "", err
	}
	h.sessions.Delete(scope, id)
	slog.Info("capture saved", "scope", scope, "session", id, "expense", savedID)
	return savedID, nil
}
