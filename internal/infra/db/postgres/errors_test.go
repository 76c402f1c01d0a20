package postgres

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"insufficient privilege", &pq.Error{Code: "42501"}, analysis.ErrPermissionDenied},
		{"bad password", &pq.Error{Code: "28P01"}, analysis.ErrPermissionDenied},
		{"invalid authorization", &pq.Error{Code: "28000"}, analysis.ErrPermissionDenied},
		{"connection failure", &pq.Error{Code: "08006"}, analysis.ErrUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, analysis.ErrUnavailable},
		{"bad conn", driver.ErrBadConn, analysis.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, classify(tt.in), tt.want)
		})
	}

	unique := &pq.Error{Code: "23505"}
	require.Equal(t, error(unique), classify(unique))
	plain := errors.New("boom")
	require.Equal(t, plain, classify(plain))
}
