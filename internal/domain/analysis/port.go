package analysis

import (
	"context"
	"time"
)

// TextExtractor turns raw file bytes into text (OCR, PDF heuristics).
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// URLExtractor fetches a page and returns its readable text.
type URLExtractor interface {
	ExtractURL(ctx context.Context, rawURL string) (string, error)
}

// Classifier port (external service atau heuristic lokal)
type Classifier interface {
	Classify(ctx context.Context, text string) ([]SentimentScore, error)
}

// SummaryRequest carries what a generative summary needs.
type SummaryRequest struct {
	Text       string
	Language   string
	Label      Label
	Confidence float64
}

// Generator port untuk generative text service
type Generator interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Repository port (remote document store)
type Repository interface {
	Insert(ctx context.Context, r *Record) (string, error)
	Get(ctx context.Context, owner, id string) (*Record, error)
	List(ctx context.Context, owner string, f ListFilter) ([]*Record, error)
	Update(ctx context.Context, owner, id string, p Patch) error
	Delete(ctx context.Context, owner, id string) error
}

// LocalStore port (durable key-value storage on this host)
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Locker is implemented by local stores that several processes share.
// TryLock returns ErrLocked while another holder's lease is live.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// ArtifactStore port (penyimpanan file yang dianalisis)
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Event is a telemetry data point.
type Event struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	OwnerID string         `json:"ownerId,omitempty"`
	Props   map[string]any `json:"props,omitempty"`
	At      time.Time      `json:"at"`
}

// EventSink port untuk analytics
type EventSink interface {
	Record(ctx context.Context, e Event) error
}
