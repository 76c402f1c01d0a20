package postgres

import (
	"context"
	"encoding/json"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

type EventSink struct {
	repo *Repository
}

// NewEventSink writes through repo's pool, schema and timeout.
func NewEventSink(repo *Repository) *EventSink {
	return &EventSink{repo: repo}
}

func (s *EventSink) Record(ctx context.Context, e analysis.Event) error {
	props := e.Props
	if props == nil {
		props = map[string]any{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sentiment_events (id, name, owner_id, props, created_at) VALUES ($1,$2,$3,$4,$5);`
	ctx, cancel, err := s.repo.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = s.repo.db.ExecContext(ctx, q, e.ID, e.Name, e.OwnerID, string(b), e.At)
	return classify(err)
}
