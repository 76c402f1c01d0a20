package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

type fakeRemote struct {
	mu      sync.Mutex
	recs    map[string]*analysis.Record
	seq     int
	err     error
	failFor string // Insert fails for records whose text contains this
	delay   time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{recs: map[string]*analysis.Record{}}
}

func (f *fakeRemote) Insert(_ context.Context, r *analysis.Record) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.failFor != "" && strings.Contains(r.OriginalText, f.failFor) {
		return "", errors.New("write rejected")
	}
	f.seq++
	id := fmt.Sprintf("r%03d", f.seq)
	cp := *r
	cp.ID, cp.Origin = id, analysis.OriginRemote
	f.recs[id] = &cp
	return id, nil
}

func (f *fakeRemote) Get(_ context.Context, owner, id string) (*analysis.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.recs[id]
	if !ok || r.OwnerID != owner {
		return nil, analysis.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRemote) List(_ context.Context, owner string, lf analysis.ListFilter) ([]*analysis.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*analysis.Record
	for _, r := range f.recs {
		if r.OwnerID == owner && (!lf.FavoritesOnly || r.Favorite) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > lf.Limit {
		out = out[:lf.Limit]
	}
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, owner, id string, p analysis.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok || r.OwnerID != owner {
		return analysis.ErrNotFound
	}
	p.Apply(r)
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, owner, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok || r.OwnerID != owner {
		return analysis.ErrNotFound
	}
	delete(f.recs, id)
	return nil
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

type memStore struct {
	mu sync.Mutex
	kv map[string][]byte
}

func newMemStore() *memStore { return &memStore{kv: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *memStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newGateway(remote *fakeRemote, local *memStore) *Gateway {
	return NewGateway(remote, local, &tickClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}, nil)
}

func record(owner, text string) *analysis.Record {
	return analysis.NewRecord(owner, analysis.KindText, analysis.Source{}, analysis.Result{
		OriginalText: text,
		Summary:      "summary of " + text,
	})
}

func TestSaveRemote(t *testing.T) {
	remote := newFakeRemote()
	g := newGateway(remote, newMemStore())

	rec := record("u1", "hello world")
	out, err := g.Save(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, analysis.OriginRemote, out.Origin)
	require.Equal(t, out.ID, rec.ID)
	require.Equal(t, 1, remote.count())
}

func TestSavePermissionDeniedFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = fmt.Errorf("%w: insert denied", analysis.ErrPermissionDenied)
	g := newGateway(remote, newMemStore())

	rec := record("u1", "kept locally")
	out, err := g.Save(ctx, rec)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.ID, analysis.LocalIDPrefix))
	require.Equal(t, analysis.OriginLocal, out.Origin)
	require.Regexp(t, `^local_\d+_[0-9a-z]{9}$`, out.ID)

	list, err := g.List(ctx, "u1", analysis.ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, out.ID, list[0].ID)
	require.Equal(t, analysis.OriginLocal, list[0].Origin)

	others, err := g.List(ctx, "u2", analysis.ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, others)
}

func TestSavePermissionPhraseFallsBack(t *testing.T) {
	remote := newFakeRemote()
	remote.err = errors.New("Missing or insufficient permissions.")
	g := newGateway(remote, newMemStore())
	out, err := g.Save(context.Background(), record("u1", "phrase"))
	require.NoError(t, err)
	require.Equal(t, analysis.OriginLocal, out.Origin)
}

func TestSaveUnexpectedErrorIsPersistenceFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.err = errors.New("constraint violated")
	g := newGateway(remote, newMemStore())
	_, err := g.Save(context.Background(), record("u1", "x"))
	e, ok := analysis.AsError(err)
	require.True(t, ok)
	require.Equal(t, analysis.KindPersistence, e.Kind)
}

func TestListMergesNewestFirst(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	local := newMemStore()
	g := newGateway(remote, local)

	_, err := g.Save(ctx, record("u1", "first remote"))
	require.NoError(t, err)
	remote.err = analysis.ErrUnavailable
	_, err = g.Save(ctx, record("u1", "second local"))
	require.NoError(t, err)
	remote.err = nil
	_, err = g.Save(ctx, record("u1", "third remote"))
	require.NoError(t, err)

	list, err := g.List(ctx, "u1", analysis.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "third remote", list[0].OriginalText)
	require.Equal(t, "second local", list[1].OriginalText)
}

func TestRestoreSyncsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = analysis.ErrPermissionDenied
	g := newGateway(remote, newMemStore())

	for i := 0; i < 3; i++ {
		_, err := g.Save(ctx, record("u1", fmt.Sprintf("offline %d", i)))
		require.NoError(t, err)
	}

	rep, err := g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Reachable: false, Remaining: 3}, rep)

	remote.err = nil
	rep, err = g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Reachable: true, Synced: 3, Remaining: 0}, rep)
	require.Equal(t, 3, remote.count())

	owners, err := g.Owners(ctx)
	require.NoError(t, err)
	require.Empty(t, owners)

	rep, err = g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Reachable: true}, rep)
	require.Equal(t, 3, remote.count())

	list, err := g.List(ctx, "u1", analysis.ListFilter{Limit: 10})
	require.NoError(t, err)
	for _, r := range list {
		require.Equal(t, analysis.OriginRemote, analysis.OriginOf(r.ID))
	}
}

func TestRestorePartialFailure(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = analysis.ErrUnavailable
	g := newGateway(remote, newMemStore())

	_, err := g.Save(ctx, record("u1", "good one"))
	require.NoError(t, err)
	_, err = g.Save(ctx, record("u1", "poison one"))
	require.NoError(t, err)

	remote.err = nil
	remote.failFor = "poison"
	rep, err := g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Reachable: true, Synced: 1, Failed: 1, Remaining: 1}, rep)

	remote.failFor = ""
	rep, err = g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Reachable: true, Synced: 1}, rep)
	require.Equal(t, 2, remote.count())
}

func TestLocalUpdateDeleteAndSearch(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = analysis.ErrUnavailable
	g := newGateway(remote, newMemStore())

	out, err := g.Save(ctx, record("u1", "The pizza was great"))
	require.NoError(t, err)
	_, err = g.Save(ctx, record("u1", "Service was slow"))
	require.NoError(t, err)

	fav := true
	rec, err := g.Update(ctx, "u1", out.ID, analysis.Patch{Favorite: &fav, Tags: []string{"food"}})
	require.NoError(t, err)
	require.True(t, rec.Favorite)
	require.Equal(t, []string{"food"}, rec.Tags)

	favs, err := g.Favorites(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, favs, 1)

	found, err := g.Search(ctx, "u1", "FOOD")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, out.ID, found[0].ID)

	_, err = g.Update(ctx, "u2", out.ID, analysis.Patch{Favorite: &fav})
	require.ErrorIs(t, err, analysis.ErrNotFound)

	require.NoError(t, g.Delete(ctx, "u1", out.ID))
	_, err = g.Get(ctx, "u1", out.ID)
	require.ErrorIs(t, err, analysis.ErrNotFound)

	st, err := g.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.StorageStatus{RemoteReachable: false, LocalRecords: 1}, st)
}

func TestRemoteUpdateRoutes(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	g := newGateway(remote, newMemStore())

	out, err := g.Save(ctx, record("u1", "remote record"))
	require.NoError(t, err)
	fav := true
	rec, err := g.Update(ctx, "u1", out.ID, analysis.Patch{Favorite: &fav})
	require.NoError(t, err)
	require.True(t, rec.Favorite)

	require.NoError(t, g.Delete(ctx, "u1", out.ID))
	require.ErrorIs(t, g.Delete(ctx, "u1", out.ID), analysis.ErrNotFound)
}

func TestNilRemoteAlwaysLocal(t *testing.T) {
	g := NewGateway(nil, newMemStore(), nil, nil)
	out, err := g.Save(context.Background(), record("u1", "no remote configured"))
	require.NoError(t, err)
	require.Equal(t, analysis.OriginLocal, out.Origin)
}

// stalledRemote never answers until the caller gives up.
type stalledRemote struct{}

func (stalledRemote) Insert(ctx context.Context, _ *analysis.Record) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (stalledRemote) Get(ctx context.Context, _, _ string) (*analysis.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledRemote) List(ctx context.Context, _ string, _ analysis.ListFilter) ([]*analysis.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledRemote) Update(ctx context.Context, _, _ string, _ analysis.Patch) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledRemote) Delete(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledRemoteIsBounded(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(stalledRemote{}, newMemStore(), nil, nil)
	g.Timeout = 50 * time.Millisecond

	start := time.Now()
	out, err := g.Save(ctx, record("u1", "written while the database hangs"))
	require.NoError(t, err)
	require.Equal(t, analysis.OriginLocal, out.Origin)

	list, err := g.List(ctx, "u1", analysis.ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)

	rep, err := g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Remaining: 1}, rep)

	st, err := g.Status(ctx, "u1")
	require.NoError(t, err)
	require.False(t, st.RemoteReachable)

	_, err = g.Get(ctx, "u1", "01HZREMOTEID")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestConcurrentRestoreSyncsOnce(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = analysis.ErrUnavailable
	g := newGateway(remote, newMemStore())
	for i := 0; i < 3; i++ {
		_, err := g.Save(ctx, record("u1", fmt.Sprintf("queued %d", i)))
		require.NoError(t, err)
	}

	remote.mu.Lock()
	remote.err = nil
	remote.delay = 20 * time.Millisecond
	remote.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = g.Restore(ctx, "u1")
		}()
	}
	wg.Wait()
	require.NoError(t, errors.Join(errs...))

	require.Equal(t, 3, remote.count())
	rep, err := g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, rep.Remaining)
	require.Equal(t, 3, remote.count())
}

// lockedStore is a local store whose restore lease is held elsewhere.
type lockedStore struct {
	*memStore
}

func (lockedStore) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, analysis.ErrLocked
}

func TestRestoreBusyWhenLeaseHeld(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = analysis.ErrUnavailable
	g := newGateway(remote, newMemStore())
	_, err := g.Save(ctx, record("u1", "queued"))
	require.NoError(t, err)

	g.Local = lockedStore{g.Local.(*memStore)}
	remote.err = nil
	rep, err := g.Restore(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, analysis.RestoreReport{Busy: true, Remaining: 1}, rep)
	require.Zero(t, remote.count())
}
