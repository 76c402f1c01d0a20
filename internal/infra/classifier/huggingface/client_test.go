package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var got http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = *r.Clone(context.Background())
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.NotEmpty(t, payload["inputs"])
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func client(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(url, "hf_test", time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestClassifyMapsLabelsByName(t *testing.T) {
	srv, got := newServer(t, 200, `[[{"label":"positive","score":0.7},{"label":"neutral","score":0.2},{"label":"negative","score":0.1}]]`)
	scores, err := client(t, srv.URL).Classify(context.Background(), "great product")
	require.NoError(t, err)
	require.Equal(t, "Bearer hf_test", got.Header.Get("Authorization"))
	require.Equal(t, analysis.Positive, scores[0].Label)
	require.InDelta(t, 0.7, scores[0].Score, 1e-9)
	require.InDelta(t, 0.1, scores[1].Score, 1e-9)
	require.InDelta(t, 0.2, scores[2].Score, 1e-9)
}

func TestClassifyPositionalLabels(t *testing.T) {
	srv, _ := newServer(t, 200, `[[{"label":"x","score":2},{"label":"y","score":1},{"label":"z","score":1}]]`)
	scores, err := client(t, srv.URL).Classify(context.Background(), "meh")
	require.NoError(t, err)
	require.Equal(t, analysis.Negative, analysis.Primary(scores).Label)
	require.InDelta(t, 0.5, scores[1].Score, 1e-9)
}

func TestClassifyFlatResponse(t *testing.T) {
	srv, _ := newServer(t, 200, `[{"label":"LABEL_2","score":0.9},{"label":"LABEL_0","score":0.1}]`)
	scores, err := client(t, srv.URL).Classify(context.Background(), "love it")
	require.NoError(t, err)
	require.Equal(t, analysis.Positive, analysis.Primary(scores).Label)
	require.InDelta(t, 0.0, scores[2].Score, 1e-9)
}

func TestClassifyErrors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{429, `{"error":"rate limited"}`, analysis.ErrRateLimited},
		{401, `{"error":"bad token"}`, analysis.ErrUnauthorized},
		{503, `{"error":"loading"}`, analysis.ErrUnavailable},
		{200, `{"error":"model loading"}`, analysis.ErrBadResponse},
		{200, `not json`, analysis.ErrBadResponse},
		{200, `[[]]`, analysis.ErrBadResponse},
	}
	for _, tc := range cases {
		srv, _ := newServer(t, tc.status, tc.body)
		_, err := client(t, srv.URL).Classify(context.Background(), "text")
		require.ErrorIs(t, err, tc.want, tc.body)
	}
}

func TestClassifyWithoutKey(t *testing.T) {
	c, err := NewClient("", "", 0, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultURL, c.URL)
	require.Equal(t, 10*time.Second, c.HTTP.Timeout)
	_, err = c.Classify(context.Background(), "text")
	require.ErrorIs(t, err, analysis.ErrNotConfigured)
}
