// Package persistence saves analysis records remote-first and keeps them on
// local storage when the remote store refuses or cannot be reached.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bryanwahyu/sentiment-api/internal/application"
	"github.com/bryanwahyu/sentiment-api/internal/application/fallback"
	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	recordPrefix = "sentiment_record:"
	indexPrefix  = "sentiment_index:"

	defaultLimit = 20
	searchWindow = 100

	// DefaultTimeout bounds a single remote store call.
	DefaultTimeout = 10 * time.Second
	restoreLease   = 10 * time.Minute
)

// Gateway is the single entry point for record storage.
type Gateway struct {
	Remote analysis.Repository
	Local  analysis.LocalStore
	Clock  application.Clock
	Logger *slog.Logger
	// Timeout bounds every remote store call. Zero means DefaultTimeout.
	Timeout time.Duration

	save     *fallback.Chain[*analysis.Record, analysis.SaveOutcome]
	restores singleflight.Group
	// mu guards the read-modify-write of per-owner index lists.
	mu sync.Mutex
}

// NewGateway wires a gateway. A nil remote behaves as a store that is never reachable.
func NewGateway(remote analysis.Repository, local analysis.LocalStore, clock application.Clock, logger *slog.Logger) *Gateway {
	if remote == nil {
		remote = offline{}
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{Remote: remote, Local: local, Clock: clock, Logger: logger}
	g.save = &fallback.Chain[*analysis.Record, analysis.SaveOutcome]{
		Name: "persistence.save",
		Strategies: []fallback.Strategy[*analysis.Record, analysis.SaveOutcome]{
			fallback.Func[*analysis.Record, analysis.SaveOutcome]{Label: "remote", Fn: g.saveRemote},
			fallback.Func[*analysis.Record, analysis.SaveOutcome]{Label: "local", Fn: g.saveLocal},
		},
		Recoverable: ShouldFallback,
		Logger:      logger,
	}
	return g
}

// ShouldFallback reports whether a remote failure is redirected to local storage.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, analysis.ErrPermissionDenied) ||
		errors.Is(err, analysis.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "insufficient privilege")
}

// Save stores rec and sets its ID and Origin. The write is redirected to
// local storage on a fallback-class remote error, never dropped.
func (g *Gateway) Save(ctx context.Context, rec *analysis.Record) (analysis.SaveOutcome, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = g.Clock.Now().UTC()
	}
	out, err := g.save.Run(ctx, rec)
	if err != nil {
		g.Logger.Error("persistence.save.failed", "owner", rec.OwnerID, "error", err)
		return analysis.SaveOutcome{}, analysis.NewPersistence("Failed to save analysis", err)
	}
	rec.ID, rec.Origin = out.ID, out.Origin
	return out, nil
}

// remote bounds ctx for one remote store call.
func (g *Gateway) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	d := g.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (g *Gateway) saveRemote(ctx context.Context, rec *analysis.Record) (analysis.SaveOutcome, error) {
	ctx, cancel := g.remote(ctx)
	defer cancel()
	id, err := g.Remote.Insert(ctx, rec)
	if err != nil {
		return analysis.SaveOutcome{}, err
	}
	return analysis.SaveOutcome{ID: id, Origin: analysis.OriginRemote}, nil
}

func (g *Gateway) saveLocal(ctx context.Context, rec *analysis.Record) (analysis.SaveOutcome, error) {
	cp := *rec
	cp.ID = g.newLocalID()
	cp.Origin = analysis.OriginLocal
	if err := g.putLocal(ctx, &cp); err != nil {
		return analysis.SaveOutcome{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ids, err := g.index(ctx, cp.OwnerID)
	if err != nil {
		return analysis.SaveOutcome{}, err
	}
	if err := g.writeIndex(ctx, cp.OwnerID, append(ids, cp.ID)); err != nil {
		_ = g.Local.Delete(ctx, recordPrefix+cp.ID)
		return analysis.SaveOutcome{}, err
	}
	g.Logger.Warn("persistence.save.local", "owner", cp.OwnerID, "id", cp.ID)
	return analysis.SaveOutcome{ID: cp.ID, Origin: analysis.OriginLocal}, nil
}

func (g *Gateway) newLocalID() string {
	var b strings.Builder
	for b.Len() < 9 {
		b.WriteString(strconv.FormatUint(rand.Uint64(), 36))
	}
	return fmt.Sprintf("%s%d_%s", analysis.LocalIDPrefix, g.Clock.Now().UnixMilli(), b.String()[:9])
}

// List returns the owner's records newest first. Local records are merged in,
// and serve alone when the remote store falls back.
func (g *Gateway) List(ctx context.Context, owner string, f analysis.ListFilter) ([]*analysis.Record, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	rctx, cancel := g.remote(ctx)
	remote, err := g.Remote.List(rctx, owner, f)
	cancel()
	if err != nil {
		if !ShouldFallback(err) {
			return nil, err
		}
		g.Logger.Warn("persistence.list.local", "owner", owner, "error", err)
		remote = nil
	}
	local, lerr := g.listLocal(ctx, owner, f)
	if lerr != nil {
		if err != nil {
			return nil, analysis.NewPersistence("Failed to load history", errors.Join(err, lerr))
		}
		g.Logger.Warn("persistence.list.local_failed", "owner", owner, "error", lerr)
	}
	all := append(remote, local...)
	sortNewest(all)
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

// Favorites is List restricted to favorite records.
func (g *Gateway) Favorites(ctx context.Context, owner string, limit int) ([]*analysis.Record, error) {
	return g.List(ctx, owner, analysis.ListFilter{Limit: limit, FavoritesOnly: true})
}

// Search filters the newest records by text, summary or tags.
func (g *Gateway) Search(ctx context.Context, owner, term string) ([]*analysis.Record, error) {
	recs, err := g.List(ctx, owner, analysis.ListFilter{Limit: searchWindow})
	if err != nil {
		return nil, err
	}
	out := make([]*analysis.Record, 0, len(recs))
	for _, r := range recs {
		if r.Matches(term) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *Gateway) Get(ctx context.Context, owner, id string) (*analysis.Record, error) {
	var (
		rec *analysis.Record
		err error
	)
	if analysis.OriginOf(id) == analysis.OriginLocal {
		rec, err = g.getLocal(ctx, owner, id)
	} else {
		rctx, cancel := g.remote(ctx)
		rec, err = g.Remote.Get(rctx, owner, id)
		cancel()
	}
	if errors.Is(err, analysis.ErrNotFound) {
		return nil, analysis.NewNotFound(id)
	}
	return rec, err
}

// Update applies p to the record and returns the result.
func (g *Gateway) Update(ctx context.Context, owner, id string, p analysis.Patch) (*analysis.Record, error) {
	if analysis.OriginOf(id) == analysis.OriginRemote {
		rctx, cancel := g.remote(ctx)
		err := g.Remote.Update(rctx, owner, id, p)
		cancel()
		if err != nil {
			if errors.Is(err, analysis.ErrNotFound) {
				return nil, analysis.NewNotFound(id)
			}
			return nil, err
		}
		return g.Get(ctx, owner, id)
	}
	rec, err := g.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	p.Apply(rec)
	if err := g.putLocal(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (g *Gateway) Delete(ctx context.Context, owner, id string) error {
	if analysis.OriginOf(id) == analysis.OriginRemote {
		rctx, cancel := g.remote(ctx)
		err := g.Remote.Delete(rctx, owner, id)
		cancel()
		if errors.Is(err, analysis.ErrNotFound) {
			return analysis.NewNotFound(id)
		}
		return err
	}
	if _, err := g.Get(ctx, owner, id); err != nil {
		return err
	}
	return g.dropLocal(ctx, owner, id)
}

// Restore moves the owner's local records to the remote store. Each record
// syncs independently and leaves the local index as soon as it lands, so a
// second run after a partial failure never duplicates. Concurrent calls for
// one owner share a single pass, and a pass held by another process sharing
// the local store is reported as Busy.
func (g *Gateway) Restore(ctx context.Context, owner string) (analysis.RestoreReport, error) {
	v, err, _ := g.restores.Do(owner, func() (any, error) {
		return g.restoreLeased(ctx, owner)
	})
	if err != nil {
		return analysis.RestoreReport{}, err
	}
	return v.(analysis.RestoreReport), nil
}

func (g *Gateway) restoreLeased(ctx context.Context, owner string) (analysis.RestoreReport, error) {
	locker, ok := g.Local.(analysis.Locker)
	if !ok {
		return g.restore(ctx, owner)
	}
	unlock, err := locker.TryLock(ctx, "restore:"+owner, restoreLease)
	if errors.Is(err, analysis.ErrLocked) {
		ids, err := g.lockedIndex(ctx, owner)
		if err != nil {
			return analysis.RestoreReport{}, err
		}
		g.Logger.Info("persistence.restore.busy", "owner", owner)
		return analysis.RestoreReport{Busy: true, Remaining: len(ids)}, nil
	}
	if err != nil {
		return analysis.RestoreReport{}, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			g.Logger.Warn("persistence.restore.unlock_failed", "owner", owner, "error", err)
		}
	}()
	return g.restore(ctx, owner)
}

func (g *Gateway) restore(ctx context.Context, owner string) (analysis.RestoreReport, error) {
	var report analysis.RestoreReport
	ids, err := g.lockedIndex(ctx, owner)
	if err != nil {
		return report, err
	}
	if !g.reachable(ctx, owner) {
		report.Remaining = len(ids)
		return report, nil
	}
	report.Reachable = true

	for _, id := range ids {
		rec, err := g.getLocal(ctx, owner, id)
		if errors.Is(err, analysis.ErrNotFound) {
			// stale index entry
			_ = g.unindex(ctx, owner, id)
			continue
		}
		if err != nil {
			report.Failed++
			g.Logger.Warn("persistence.restore.read_failed", "owner", owner, "id", id, "error", err)
			continue
		}
		cp := *rec
		cp.ID = ""
		cp.CreatedAt = g.Clock.Now().UTC()
		rctx, cancel := g.remote(ctx)
		remoteID, err := g.Remote.Insert(rctx, &cp)
		cancel()
		if err != nil {
			report.Failed++
			g.Logger.Warn("persistence.restore.sync_failed", "owner", owner, "id", id, "error", err)
			continue
		}
		if err := g.dropLocal(ctx, owner, id); err != nil {
			g.Logger.Error("persistence.restore.cleanup_failed", "owner", owner, "id", id, "remote_id", remoteID, "error", err)
		}
		report.Synced++
		g.Logger.Info("persistence.restore.synced", "owner", owner, "id", id, "remote_id", remoteID)
	}

	left, err := g.lockedIndex(ctx, owner)
	if err != nil {
		return report, err
	}
	report.Remaining = len(left)
	return report, nil
}

// reachable checks the remote with a write and delete.
func (g *Gateway) reachable(ctx context.Context, owner string) bool {
	rec := analysis.NewRecord(owner, analysis.KindText, analysis.Source{}, analysis.Result{
		OriginalText: "connectivity check",
		Summary:      "connectivity check",
	})
	rec.CreatedAt = g.Clock.Now().UTC()
	ctx, cancel := g.remote(ctx)
	defer cancel()
	id, err := g.Remote.Insert(ctx, rec)
	if err != nil {
		g.Logger.Info("persistence.restore.unreachable", "owner", owner, "error", err)
		return false
	}
	if err := g.Remote.Delete(ctx, owner, id); err != nil {
		g.Logger.Warn("persistence.restore.check_cleanup", "owner", owner, "id", id, "error", err)
	}
	return true
}

// Status reports remote reachability and the owner's pending local records.
func (g *Gateway) Status(ctx context.Context, owner string) (analysis.StorageStatus, error) {
	ids, err := g.lockedIndex(ctx, owner)
	if err != nil {
		return analysis.StorageStatus{}, err
	}
	rctx, cancel := g.remote(ctx)
	defer cancel()
	_, rerr := g.Remote.List(rctx, owner, analysis.ListFilter{Limit: 1})
	return analysis.StorageStatus{RemoteReachable: rerr == nil, LocalRecords: len(ids)}, nil
}

// Owners lists every owner with a local index.
func (g *Gateway) Owners(ctx context.Context) ([]string, error) {
	keys, err := g.Local.Keys(ctx, indexPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, indexPrefix))
	}
	return out, nil
}

// RestoreAll runs Restore for every owner with local records.
func (g *Gateway) RestoreAll(ctx context.Context) (map[string]analysis.RestoreReport, error) {
	owners, err := g.Owners(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]analysis.RestoreReport, len(owners))
	for _, owner := range owners {
		rep, err := g.Restore(ctx, owner)
		if err != nil {
			g.Logger.Warn("persistence.restore.owner_failed", "owner", owner, "error", err)
			continue
		}
		out[owner] = rep
	}
	return out, nil
}

// local storage helpers

func (g *Gateway) listLocal(ctx context.Context, owner string, f analysis.ListFilter) ([]*analysis.Record, error) {
	ids, err := g.lockedIndex(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]*analysis.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := g.getLocal(ctx, owner, id)
		if errors.Is(err, analysis.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.FavoritesOnly && !rec.Favorite {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *Gateway) getLocal(ctx context.Context, owner, id string) (*analysis.Record, error) {
	b, err := g.Local.Get(ctx, recordPrefix+id)
	if err != nil {
		return nil, err
	}
	var rec analysis.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode local record %s: %w", id, err)
	}
	if rec.OwnerID != owner {
		return nil, analysis.ErrNotFound
	}
	rec.Origin = analysis.OriginLocal
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return &rec, nil
}

func (g *Gateway) putLocal(ctx context.Context, rec *analysis.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return g.Local.Put(ctx, recordPrefix+rec.ID, b)
}

// dropLocal removes the record and its index entry.
func (g *Gateway) dropLocal(ctx context.Context, owner, id string) error {
	if err := g.unindex(ctx, owner, id); err != nil {
		return err
	}
	return g.Local.Delete(ctx, recordPrefix+id)
}

func (g *Gateway) unindex(ctx context.Context, owner, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids, err := g.index(ctx, owner)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, x := range ids {
		if x != id {
			kept = append(kept, x)
		}
	}
	return g.writeIndex(ctx, owner, kept)
}

func (g *Gateway) lockedIndex(ctx context.Context, owner string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index(ctx, owner)
}

// index must be called with mu held.
func (g *Gateway) index(ctx context.Context, owner string) ([]string, error) {
	b, err := g.Local.Get(ctx, indexPrefix+owner)
	if errors.Is(err, analysis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode local index for %s: %w", owner, err)
	}
	return ids, nil
}

func (g *Gateway) writeIndex(ctx context.Context, owner string, ids []string) error {
	if len(ids) == 0 {
		return g.Local.Delete(ctx, indexPrefix+owner)
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return g.Local.Put(ctx, indexPrefix+owner, b)
}

func sortNewest(recs []*analysis.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}

// offline stands in for an unconfigured remote store.
type offline struct{}

func (offline) Insert(context.Context, *analysis.Record) (string, error) {
	return "", analysis.ErrUnavailable
}

func (offline) Get(context.Context, string, string) (*analysis.Record, error) {
	return nil, analysis.ErrNotFound
}

func (offline) List(context.Context, string, analysis.ListFilter) ([]*analysis.Record, error) {
	return nil, analysis.ErrUnavailable
}

func (offline) Update(context.Context, string, string, analysis.Patch) error {
	return analysis.ErrNotFound
}

func (offline) Delete(context.Context, string, string) error {
	return analysis.ErrNotFound
}
