package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wallet-ledger/internal/wallet"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service writes the financial event trail. It is a wallet.EventSink.
//
// Audit is internal-only. Records are not exposed to end users.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Service == "" {
		e.Service = ServiceName
	}
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record stores a committed ledger event.
func (s *Service) Record(ctx context.Context, e wallet.Event) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	amount := ""
	if !e.Amount.IsZero() {
		amount = e.Amount.StringFixed(2)
	}
	return s.Append(ctx, Event{
		Type:        string(e.Type),
		ActorID:     e.ActorID,
		Amount:      amount,
		ReferenceID: e.ReferenceID,
		Metadata:    meta,
		CreatedAt:   e.OccurredAt,
	})
}

// LogAdminAction records a privileged API call with the caller's role and IP.
func (s *Service) LogAdminAction(ctx context.Context, actorID, actorRole, ip, action, referenceID string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["action"] = action
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:        EventTypeAdminAction,
		ActorID:     actorID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		ReferenceID: referenceID,
		Metadata:    meta,
	})
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
