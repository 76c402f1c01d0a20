package analysis

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/infra/classifier/heuristic"
)

type stubClassifier struct {
	mu     sync.Mutex
	inputs []string
	scores []domain.SentimentScore
	err    error
}

func (c *stubClassifier) Classify(_ context.Context, text string) ([]domain.SentimentScore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, text)
	return c.scores, c.err
}

type stubGenerator struct {
	summary     string
	summaryErr  error
	translation string
	translate   error
	summaryReqs []domain.SummaryRequest
	translated  []string
}

func (g *stubGenerator) Summarize(_ context.Context, req domain.SummaryRequest) (string, error) {
	g.summaryReqs = append(g.summaryReqs, req)
	return g.summary, g.summaryErr
}

func (g *stubGenerator) Translate(_ context.Context, text, from, to string) (string, error) {
	g.translated = append(g.translated, from+"->"+to)
	if g.translate != nil {
		return "", g.translate
	}
	if g.translation == "" {
		return text, nil
	}
	return g.translation, nil
}

type stubRecorder struct {
	out  domain.SaveOutcome
	err  error
	recs []*domain.Record
}

func (r *stubRecorder) Save(_ context.Context, rec *domain.Record) (domain.SaveOutcome, error) {
	r.recs = append(r.recs, rec)
	if r.err != nil {
		return domain.SaveOutcome{}, r.err
	}
	rec.ID, rec.Origin = r.out.ID, r.out.Origin
	return r.out, nil
}

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) Extract(context.Context, []byte) (string, error) { return e.text, e.err }

func (e stubExtractor) ExtractURL(context.Context, string) (string, error) { return e.text, e.err }

type recordedEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordedEvents) Publish(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func positiveScores() []domain.SentimentScore {
	return domain.Normalize(map[domain.Label]float64{domain.Positive: 0.8, domain.Negative: 0.1, domain.Neutral: 0.1})
}

func newService() (*Service, *stubClassifier, *stubGenerator) {
	c := &stubClassifier{scores: positiveScores()}
	g := &stubGenerator{summary: "The author is clearly delighted with the experience."}
	return &Service{Classifier: c, Heuristic: heuristic.New(), Generator: g}, c, g
}

func TestAnalyzeTextEnglish(t *testing.T) {
	s, c, g := newService()
	out, err := s.AnalyzeText(context.Background(), AnalyzeCommand{
		Text:          "I really love this product and the service is great",
		AutoTranslate: true,
	})
	require.NoError(t, err)
	rec := out.Record
	require.Equal(t, "en", rec.DetectedLanguage.ISOCode)
	require.Empty(t, rec.TranslatedText)
	require.Empty(t, g.translated)
	require.Equal(t, domain.Positive, rec.PrimarySentiment.Label)
	require.Equal(t, "The author is clearly delighted with the experience.", rec.Summary)
	require.Equal(t, []string{rec.OriginalText}, c.inputs)
	require.Empty(t, out.Storage)

	var sum float64
	for _, sc := range rec.SentimentScores {
		sum += sc.Score
	}
	require.InDelta(t, 1.0, sum, 1e-6)
}

func TestClassifyUsesTranslationSummaryUsesOriginal(t *testing.T) {
	s, c, g := newService()
	g.translation = "The service is excellent and the food at home is very good"
	original := "El servicio es excelente y la comida de la casa es muy buena"

	out, err := s.AnalyzeText(context.Background(), AnalyzeCommand{Text: original, AutoTranslate: true})
	require.NoError(t, err)
	require.Equal(t, "es", out.Record.DetectedLanguage.ISOCode)
	require.Equal(t, g.translation, out.Record.TranslatedText)
	require.Equal(t, []string{"Spanish->English"}, g.translated)
	require.Equal(t, []string{g.translation}, c.inputs)
	require.Len(t, g.summaryReqs, 1)
	require.Equal(t, original, g.summaryReqs[0].Text)
	require.Equal(t, "Spanish", g.summaryReqs[0].Language)
}

func TestTranslationSkippedWhenDisabledOrNoop(t *testing.T) {
	original := "El servicio es excelente y la comida de la casa es muy buena"

	s, c, g := newService()
	_, err := s.AnalyzeText(context.Background(), AnalyzeCommand{Text: original})
	require.NoError(t, err)
	require.Empty(t, g.translated)
	require.Equal(t, []string{original}, c.inputs)

	// identical output counts as no translation
	s, c, g = newService()
	out, err := s.AnalyzeText(context.Background(), AnalyzeCommand{Text: original, AutoTranslate: true})
	require.NoError(t, err)
	require.Len(t, g.translated, 1)
	require.Empty(t, out.Record.TranslatedText)
	require.Equal(t, []string{original}, c.inputs)

	s, _, g = newService()
	g.translate = errors.New("quota")
	out, err = s.AnalyzeText(context.Background(), AnalyzeCommand{Text: original, AutoTranslate: true})
	require.NoError(t, err)
	require.Empty(t, out.Record.TranslatedText)
}

func TestClassifierFailureFallsBackToHeuristic(t *testing.T) {
	s, c, _ := newService()
	c.err = domain.ErrUnavailable
	out, err := s.AnalyzeText(context.Background(), AnalyzeCommand{Text: "I hate this awful broken product"})
	require.NoError(t, err)
	require.Equal(t, domain.Negative, out.Record.PrimarySentiment.Label)
	require.Greater(t, out.Record.PrimarySentiment.Confidence, 1.0/3)
}

func TestSummaryFallback(t *testing.T) {
	s, _, g := newService()
	g.summary = "Too short"
	out, err := s.AnalyzeText(context.Background(), AnalyzeCommand{Text: "I really love this product and the service is great"})
	require.NoError(t, err)
	require.Equal(t,
		"This English text expresses positive sentiment with 80% confidence, indicating an optimistic and favorable view. The input is brief content.",
		out.Record.Summary)

	s.Generator = nil
	out, err = s.AnalyzeText(context.Background(), AnalyzeCommand{Text: "I really love this product and the service is great"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Record.Summary, "This English text expresses positive sentiment"))
}

func TestFallbackSummaryQualifiers(t *testing.T) {
	req := domain.SummaryRequest{Language: "French", Label: domain.Neutral, Confidence: 0.456}
	req.Text = strings.Repeat("a", 99)
	require.Contains(t, FallbackSummary(req), "brief content")
	require.Contains(t, FallbackSummary(req), "neutral sentiment with 46% confidence")
	req.Text = strings.Repeat("a", 100)
	require.Contains(t, FallbackSummary(req), "moderate content")
	req.Text = strings.Repeat("a", 500)
	require.Contains(t, FallbackSummary(req), "substantial content")
	req.Label = "MIXED"
	require.Contains(t, FallbackSummary(req), "indicating mixed emotions")
}

func TestValidationShortCircuits(t *testing.T) {
	s, c, _ := newService()
	_, err := s.AnalyzeText(context.Background(), AnalyzeCommand{Text: "ok"})
	require.True(t, domain.HasCode(err, domain.CodeTooShort))
	require.Empty(t, c.inputs)

	_, err = s.AnalyzeText(context.Background(), AnalyzeCommand{Text: "   "})
	e, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, e.Status)
}

func TestPersistenceStatus(t *testing.T) {
	s, _, _ := newService()
	rec := &stubRecorder{out: domain.SaveOutcome{ID: "local_1_abc", Origin: domain.OriginLocal}}
	s.Store = rec
	events := &recordedEvents{}
	s.Events = events

	out, err := s.AnalyzeText(context.Background(), AnalyzeCommand{OwnerID: "u1", Text: "I really love this product and the service is great"})
	require.NoError(t, err)
	require.Equal(t, StorageLocal, out.Storage)
	require.Equal(t, "local_1_abc", out.Record.ID)
	require.Equal(t, "u1", out.Record.OwnerID)
	require.Len(t, events.events, 1)
	require.Equal(t, "analysis_completed", events.events[0].Name)

	rec.err = domain.NewPersistence("Failed to save analysis", errors.New("disk full"))
	out, err = s.AnalyzeText(context.Background(), AnalyzeCommand{OwnerID: "u1", Text: "I really love this product and the service is great"})
	require.NoError(t, err)
	require.Equal(t, StorageUnsaved, out.Storage)

	// anonymous callers are never persisted
	out, err = s.AnalyzeText(context.Background(), AnalyzeCommand{Text: "I really love this product and the service is great"})
	require.NoError(t, err)
	require.Empty(t, out.Storage)
	require.Len(t, rec.recs, 2)
}

func TestAnalyzeFile(t *testing.T) {
	s, _, _ := newService()
	s.Images = stubExtractor{text: "What a wonderful sunny day at the beach"}
	out, err := s.AnalyzeFile(context.Background(), AnalyzeCommand{File: &File{Name: "pic.png", ContentType: "image/png", Data: []byte{1, 2, 3}}})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Record.Summary, "File Analysis: "))
	require.Equal(t, "pic.png", out.Record.Source.FileName)

	_, err = s.AnalyzeFile(context.Background(), AnalyzeCommand{File: &File{Name: "a.exe", ContentType: "application/octet-stream", Data: []byte{1}}})
	e, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnsupportedMediaType, e.Status)

	s.MaxUpload = 2
	_, err = s.AnalyzeFile(context.Background(), AnalyzeCommand{File: &File{Name: "pic.png", ContentType: "image/png", Data: []byte{1, 2, 3}}})
	require.True(t, domain.HasCode(err, domain.CodeFileTooLarge))
}

func TestPDFRemediation(t *testing.T) {
	tests := []struct {
		code    string
		message string
	}{
		{domain.CodePDFCorrupted, "PDF Text Extraction Failed"},
		{domain.CodePDFNoText, "No Text Found in PDF"},
		{domain.CodePDFFailed, "PDF Processing Error"},
	}
	for _, tt := range tests {
		s, _, _ := newService()
		s.PDFs = stubExtractor{err: domain.NewExtraction(tt.code, "raw", nil)}
		_, err := s.AnalyzeFile(context.Background(), AnalyzeCommand{File: &File{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}})
		e, ok := domain.AsError(err)
		require.True(t, ok)
		require.Equal(t, tt.code, e.Code)
		require.Equal(t, tt.message, e.Message)
		require.NotEmpty(t, e.Details)
		require.Len(t, e.Suggestions, 4)
	}
}

func TestAnalyzeURL(t *testing.T) {
	s, _, _ := newService()
	s.Web = stubExtractor{text: "This article explains how great the new library release is"}
	out, err := s.AnalyzeURL(context.Background(), AnalyzeCommand{URL: " https://example.com/post "})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Record.Summary, "URL Analysis (https://example.com/post): "))
	require.Equal(t, "https://example.com/post", out.Record.Source.URL)

	s.Web = stubExtractor{err: domain.NewUnsupportedContentType("application/json")}
	_, err = s.AnalyzeURL(context.Background(), AnalyzeCommand{URL: "https://example.com/api"})
	e, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnsupportedContentType, e.Code)
	require.NotEmpty(t, e.Suggestions)
}

func TestAnalyzeMulti(t *testing.T) {
	s, _, _ := newService()
	s.Web = stubExtractor{text: "This article explains how great the new library release is"}

	_, err := s.AnalyzeMulti(context.Background(), AnalyzeCommand{})
	require.True(t, domain.HasCode(err, domain.CodeInvalidRequest))

	_, err = s.AnalyzeMulti(context.Background(), AnalyzeCommand{Text: "some words here", URL: "https://example.com"})
	require.True(t, domain.HasCode(err, domain.CodeInvalidRequest))

	_, err = s.AnalyzeMulti(context.Background(), AnalyzeCommand{Text: "good day"})
	require.True(t, domain.HasCode(err, domain.CodeInsufficientContent))

	out, err := s.AnalyzeMulti(context.Background(), AnalyzeCommand{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Record.Summary, "URL Analysis (https://example.com/a): "))

	out, err = s.AnalyzeMulti(context.Background(), AnalyzeCommand{Text: "I really love this product and the service is great"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Record.Summary, "TEXT Analysis (direct input): "))
	require.Equal(t, domain.KindText, out.Record.Kind)
}

func TestAnalyzeBatch(t *testing.T) {
	s, c, _ := newService()

	_, err := s.AnalyzeBatch(context.Background(), BatchCommand{})
	require.True(t, domain.HasCode(err, domain.CodeInvalidRequest))

	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = "I really love this product and the service is great"
	}
	_, err = s.AnalyzeBatch(context.Background(), BatchCommand{Texts: tooMany})
	require.True(t, domain.HasCode(err, domain.CodeInvalidRequest))
	require.Empty(t, c.inputs)

	out, err := s.AnalyzeBatch(context.Background(), BatchCommand{Texts: []string{
		"I really love this product and the service is great",
		"   ",
		"ok",
		"The delivery was late and the box arrived damaged",
	}})
	require.NoError(t, err)
	require.Equal(t, 2, out.TotalProcessed)
	require.Len(t, out.Results, 2)
	require.Equal(t, 2, out.Skipped)
	require.GreaterOrEqual(t, out.AverageProcessingTimeMs, int64(0))
}

type slowClassifier struct{}

func (slowClassifier) Classify(ctx context.Context, _ string) ([]domain.SentimentScore, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAnalyzeBatchStopsWhenBudgetRunsOut(t *testing.T) {
	s, _, _ := newService()
	s.Classifier = slowClassifier{}
	s.BatchTimeout = 20 * time.Millisecond

	text := "I really love this product and the service is great"
	start := time.Now()
	out, err := s.AnalyzeBatch(context.Background(), BatchCommand{Texts: []string{text, text, text}})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, out.TotalProcessed)
	require.Equal(t, 2, out.Unprocessed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.AnalyzeBatch(ctx, BatchCommand{Texts: []string{text}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeMultiFailureReportsInputKind(t *testing.T) {
	s, _, _ := newService()
	events := &recordedEvents{}
	s.Events = events
	s.Web = stubExtractor{err: errors.New("connection reset")}

	_, err := s.AnalyzeMulti(context.Background(), AnalyzeCommand{URL: "https://example.com/a"})
	require.Error(t, err)

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 1)
	require.Equal(t, "analysis_failed", events.events[0].Name)
	require.Equal(t, string(domain.KindURL), events.events[0].Props["type"])
}

func TestTranslateUseCase(t *testing.T) {
	s, _, g := newService()
	g.translation = "The service is excellent"
	out, err := s.Translate(context.Background(), TranslateCommand{Text: "El servicio es excelente y la comida es buena"})
	require.NoError(t, err)
	require.Equal(t, "Spanish", out.SourceLanguage)
	require.Equal(t, "en", out.TargetLanguage)
	require.Equal(t, "The service is excellent", out.TranslatedText)
	require.Equal(t, []string{"Spanish->English"}, g.translated)

	g.translate = errors.New("down")
	out, err = s.Translate(context.Background(), TranslateCommand{Text: "Bonjour", SourceLanguage: "fr", TargetLanguage: "de"})
	require.NoError(t, err)
	require.Equal(t, "Bonjour", out.TranslatedText)

	_, err = s.Translate(context.Background(), TranslateCommand{Text: " "})
	require.True(t, domain.HasCode(err, domain.CodeInvalidRequest))
}
