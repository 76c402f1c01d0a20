package mysql

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

// Repository stores analysis records as JSON documents.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
	schema  *schema
}

// DefaultTimeout bounds a single statement when NewRepository gets zero.
const DefaultTimeout = 10 * time.Second

// NewRepository creates the tables lazily on first use, so it can be built
// while the database is still unreachable.
func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repository{db: db, timeout: timeout, schema: &schema{db: db}}
}

// begin bounds ctx and makes sure the tables exist.
func (r *Repository) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	if err := r.schema.ensure(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

// EnsureSchema runs the migration now instead of on first use.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, cancel, err := r.begin(ctx)
	if err != nil {
		return err
	}
	cancel()
	return nil
}

// Insert stores r under a fresh ULID and returns the id.
func (r *Repository) Insert(ctx context.Context, rec *analysis.Record) (string, error) {
	const q = `
INSERT INTO sentiments
  (id, owner_id, favorite, tags, document, created_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  favorite=VALUES(favorite), tags=VALUES(tags), document=VALUES(document);
`
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tags, doc, err := encode(rec)
	if err != nil {
		return "", err
	}
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	if _, err := r.db.ExecContext(ctx, q, id, rec.OwnerID, rec.Favorite, tags, doc, createdAt); err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, owner, id string) (*analysis.Record, error) {
	const q = `
SELECT id, owner_id, favorite, tags, document, created_at
FROM sentiments
WHERE owner_id=? AND id=?
LIMIT 1;
`
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	rec, err := scan(r.db.QueryRowContext(ctx, q, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// List returns the owner's records newest first.
func (r *Repository) List(ctx context.Context, owner string, f analysis.ListFilter) ([]*analysis.Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	q := `
SELECT id, owner_id, favorite, tags, document, created_at
FROM sentiments
WHERE owner_id=?`
	if f.FavoritesOnly {
		q += ` AND favorite=TRUE`
	}
	q += `
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	rows, err := r.db.QueryContext(ctx, q, owner, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*analysis.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

func (r *Repository) Update(ctx context.Context, owner, id string, p analysis.Patch) error {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	rec, err := r.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	p.Apply(rec)
	tags, doc, err := encode(rec)
	if err != nil {
		return err
	}
	const q = `UPDATE sentiments SET favorite=?, tags=?, document=? WHERE owner_id=? AND id=?;`
	_, err = r.db.ExecContext(ctx, q, rec.Favorite, tags, doc, owner, id)
	return classify(err)
}

func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM sentiments WHERE owner_id=? AND id=?;`, owner, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

// Check implements middleware.HealthChecker.
func (r *Repository) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return classify(r.db.PingContext(ctx))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*analysis.Record, error) {
	var (
		id, owner string
		favorite  bool
		tags, doc []byte
		createdAt time.Time
	)
	if err := row.Scan(&id, &owner, &favorite, &tags, &doc, &createdAt); err != nil {
		return nil, err
	}
	var rec analysis.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	rec.ID, rec.OwnerID, rec.Favorite, rec.CreatedAt = id, owner, favorite, createdAt
	rec.Origin = analysis.OriginRemote
	rec.Tags = []string{}
	if len(tags) > 0 {
		_ = json.Unmarshal(tags, &rec.Tags)
	}
	return &rec, nil
}

func encode(rec *analysis.Record) (tags, doc []byte, err error) {
	t := rec.Tags
	if t == nil {
		t = []string{}
	}
	if tags, err = json.Marshal(t); err != nil {
		return nil, nil, err
	}
	doc, err = json.Marshal(rec)
	return tags, doc, err
}
