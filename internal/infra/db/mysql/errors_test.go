package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil))

	for _, n := range []uint16{1044, 1045, 1142, 1227} {
		err := classify(&gomysql.MySQLError{Number: n, Message: "denied"})
		require.ErrorIs(t, err, analysis.ErrPermissionDenied, "code %d", n)
	}

	require.ErrorIs(t, classify(driver.ErrBadConn), analysis.ErrUnavailable)
	require.ErrorIs(t, classify(fmt.Errorf("ping: %w", context.DeadlineExceeded)), analysis.ErrUnavailable)

	other := errors.New("syntax error")
	require.Equal(t, other, classify(other))
	dup := &gomysql.MySQLError{Number: 1062, Message: "duplicate"}
	require.NotErrorIs(t, classify(dup), analysis.ErrPermissionDenied)
}

func TestEncodeScanRoundTrip(t *testing.T) {
	rec := analysis.NewRecord("u1", analysis.KindText, analysis.Source{}, analysis.Result{
		OriginalText: "I love this",
		Summary:      "positive",
	})
	rec.Tags = nil
	tags, doc, err := encode(rec)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(tags))

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := scan(fakeRow{"01HX", "u1", true, []byte(`["a"]`), doc, created})
	require.NoError(t, err)
	require.Equal(t, "01HX", got.ID)
	require.True(t, got.Favorite)
	require.Equal(t, []string{"a"}, got.Tags)
	require.Equal(t, created, got.CreatedAt)
	require.Equal(t, "I love this", got.OriginalText)
	require.Equal(t, analysis.OriginRemote, got.Origin)
}

type fakeRow struct {
	id, owner string
	favorite  bool
	tags, doc []byte
	created   time.Time
}

func (f fakeRow) Scan(dest ...any) error {
	*dest[0].(*string) = f.id
	*dest[1].(*string) = f.owner
	*dest[2].(*bool) = f.favorite
	*dest[3].(*[]byte) = f.tags
	*dest[4].(*[]byte) = f.doc
	*dest[5].(*time.Time) = f.created
	return nil
}
