package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	DefaultUserAgent = "SentimentAI-Bot/1.0"
	defaultMaxBody   = 2 << 20
	maxRedirects     = 5
)

// Web fetches a URL and returns its visible text.
type Web struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	// Guard rejects targets that must not be fetched (internal hosts). It
	// runs on the requested URL and on every redirect.
	Guard func(rawURL string) error
	// AddrGuard rejects the resolved address of every connection.
	AddrGuard func(addr netip.Addr) error
	Logger    *slog.Logger
}

func NewWeb(timeout time.Duration, guard func(string) error, logger *slog.Logger) *Web {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Web{
		UserAgent: DefaultUserAgent,
		MaxBytes:  defaultMaxBody,
		Guard:     guard,
		Logger:    logger,
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second, Control: w.checkDial}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	tr.DialContext = dialer.DialContext
	w.Client = &http.Client{Timeout: timeout, Transport: tr, CheckRedirect: w.checkRedirect}
	return w
}

func (w *Web) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return errors.New("redirect to unsupported protocol")
	}
	if w.Guard != nil {
		return w.Guard(req.URL.String())
	}
	return nil
}

func (w *Web) checkDial(_, address string, _ syscall.RawConn) error {
	if w.AddrGuard == nil {
		return nil
	}
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return err
	}
	return w.AddrGuard(ap.Addr())
}

func urlFailure(reason string, cause error) *analysis.Error {
	e := analysis.NewExtraction(analysis.CodeURLFetchFailed, "Failed to process URL", cause)
	e.Details = "Failed to extract text from URL: " + reason
	return e
}

func (w *Web) ExtractURL(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", urlFailure("Invalid URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", urlFailure("Invalid URL protocol", nil)
	}
	if w.Guard != nil {
		if err := w.Guard(rawURL); err != nil {
			return "", urlFailure(err.Error(), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", urlFailure(err.Error(), err)
	}
	req.Header.Set("User-Agent", w.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")

	start := time.Now()
	resp, err := w.Client.Do(req)
	if err != nil {
		w.Logger.Warn("extract.url.fetch_failed", "host", u.Host, "error", err)
		return "", urlFailure(err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", urlFailure(fmt.Sprintf("Request failed with status code %d", resp.StatusCode), nil)
	}

	body := io.LimitReader(resp.Body, w.MaxBytes)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var text string
	switch {
	case strings.Contains(contentType, "text/html"):
		text = HTMLText(body)
	case strings.Contains(contentType, "text/plain"):
		b, err := io.ReadAll(body)
		if err != nil {
			return "", urlFailure(err.Error(), err)
		}
		text = strings.TrimSpace(string(b))
	default:
		e := analysis.NewUnsupportedContentType(contentType)
		e.Details = "Failed to extract text from URL: Unsupported content type " + contentType
		return "", e
	}

	w.Logger.Info("extract.url.done",
		"host", u.Host,
		"content_type", contentType,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// HTMLText returns the text nodes of a document, skipping script and style
// elements, joined by single spaces.
func HTMLText(r io.Reader) string {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(tag []byte) bool {
	s := string(tag)
	return s == "script" || s == "style"
}
