package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bryanwahyu/sentiment-api/internal/application"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/domain/text"
)

const (
	DefaultBatchLimit      = 50
	DefaultBatchTimeout    = 5 * time.Minute
	DefaultMaxUpload       = 10 << 20
	DefaultTarget          = "en"
	minTranslateConfidence = 0.3
)

// Storage status reported alongside an analysis.
const (
	StorageRemote  = "remote"
	StorageLocal   = "local"
	StorageUnsaved = "unsaved"
)

// Recorder persists finished records (the persistence gateway).
type Recorder interface {
	Save(ctx context.Context, r *domain.Record) (domain.SaveOutcome, error)
}

// Telemetry receives fire-and-forget analytics events.
type Telemetry interface {
	Publish(e domain.Event)
}

// Service runs the analysis pipeline:
// extract → validate → detect → translate? → classify → summarize → assemble.
// Dependencies other than Heuristic are optional.
type Service struct {
	Classifier domain.Classifier // external service
	Heuristic  domain.Classifier
	Generator  domain.Generator
	Images     domain.TextExtractor
	PDFs       domain.TextExtractor
	Web        domain.URLExtractor
	Store      Recorder
	Artifacts  domain.ArtifactStore
	Events     Telemetry
	Clock      application.Clock
	Logger     *slog.Logger

	BatchLimit     int
	BatchTimeout   time.Duration
	MaxUpload      int64
	TargetLanguage string // ISO 639-1
}

//
// ==== USE CASES ====
//

// File is an uploaded document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// AnalyzeCommand is the input of every analysis use case. Only the field
// matching the use case is read, except for AnalyzeMulti.
type AnalyzeCommand struct {
	OwnerID       string
	Text          string
	URL           string
	File          *File
	AutoTranslate bool
}

// AnalyzeResult is a finished analysis and where it was stored.
// Storage is empty for anonymous callers.
type AnalyzeResult struct {
	Record  *domain.Record
	Storage string
}

// AnalyzeText runs the pipeline on direct text input.
func (s *Service) AnalyzeText(ctx context.Context, cmd AnalyzeCommand) (*AnalyzeResult, error) {
	start := s.now()
	if strings.TrimSpace(cmd.Text) == "" {
		return nil, domain.NewInvalidRequest("Text is required and must be a non-empty string")
	}
	return s.finish(ctx, start, cmd, domain.KindText, domain.Source{}, cmd.Text, "")
}

// AnalyzeFile extracts text from an image or PDF upload and analyses it.
func (s *Service) AnalyzeFile(ctx context.Context, cmd AnalyzeCommand) (*AnalyzeResult, error) {
	start := s.now()
	if cmd.File == nil || len(cmd.File.Data) == 0 {
		return nil, domain.NewInvalidRequest("No file uploaded")
	}
	raw, err := s.extractFile(ctx, *cmd.File)
	if err != nil {
		s.failed(cmd.OwnerID, domain.KindFile, err)
		return nil, err
	}
	src := domain.Source{FileType: cmd.File.ContentType, FileName: cmd.File.Name}
	src.ArtifactURL = s.archive(ctx, cmd.OwnerID, *cmd.File)
	return s.finish(ctx, start, cmd, domain.KindFile, src, raw, "File Analysis: ")
}

// AnalyzeURL fetches a page and analyses its visible text.
func (s *Service) AnalyzeURL(ctx context.Context, cmd AnalyzeCommand) (*AnalyzeResult, error) {
	start := s.now()
	u := strings.TrimSpace(cmd.URL)
	if u == "" {
		return nil, domain.NewInvalidRequest("URL is required and must be a string")
	}
	raw, err := s.extractURL(ctx, u)
	if err != nil {
		s.failed(cmd.OwnerID, domain.KindURL, err)
		return nil, err
	}
	return s.finish(ctx, start, cmd, domain.KindURL, domain.Source{URL: u}, raw, "URL Analysis ("+u+"): ")
}

// AnalyzeMulti accepts exactly one of text, file or url.
func (s *Service) AnalyzeMulti(ctx context.Context, cmd AnalyzeCommand) (*AnalyzeResult, error) {
	start := s.now()
	ex, err := s.Extract(ctx, cmd)
	if err != nil {
		s.failed(cmd.OwnerID, inputKind(cmd), err)
		return nil, err
	}
	var src domain.Source
	switch ex.Kind {
	case domain.KindFile:
		src = domain.Source{FileType: cmd.File.ContentType, FileName: cmd.File.Name}
		src.ArtifactURL = s.archive(ctx, cmd.OwnerID, *cmd.File)
	case domain.KindURL:
		src = domain.Source{URL: ex.SourceID}
	}
	prefix := strings.ToUpper(string(ex.Kind)) + " Analysis (" + ex.SourceID + "): "
	return s.finish(ctx, start, cmd, ex.Kind, src, ex.Text, prefix)
}

// Extract resolves the single populated input of cmd into raw text.
func (s *Service) Extract(ctx context.Context, cmd AnalyzeCommand) (domain.Extraction, error) {
	hasFile := cmd.File != nil && len(cmd.File.Data) > 0
	hasURL := strings.TrimSpace(cmd.URL) != ""
	hasText := strings.TrimSpace(cmd.Text) != ""

	n := 0
	for _, ok := range []bool{hasFile, hasURL, hasText} {
		if ok {
			n++
		}
	}
	switch {
	case n == 0:
		return domain.Extraction{}, domain.NewInvalidRequest("No input provided. Please provide text, upload a file, or specify a URL.")
	case n > 1:
		return domain.Extraction{}, domain.NewInvalidRequest("Provide only one of text, file, or url")
	}

	switch {
	case hasFile:
		raw, err := s.extractFile(ctx, *cmd.File)
		if err != nil {
			return domain.Extraction{}, err
		}
		method := "ocr"
		if cmd.File.ContentType == "application/pdf" {
			method = "pdf"
		}
		return domain.Extraction{
			Text:     raw,
			Kind:     domain.KindFile,
			SourceID: cmd.File.Name + " (" + cmd.File.ContentType + ")",
			Method:   method,
		}, nil
	case hasURL:
		u := strings.TrimSpace(cmd.URL)
		raw, err := s.extractURL(ctx, u)
		if err != nil {
			return domain.Extraction{}, err
		}
		return domain.Extraction{Text: raw, Kind: domain.KindURL, SourceID: u, Method: "html"}, nil
	default:
		return domain.Extraction{Text: strings.TrimSpace(cmd.Text), Kind: domain.KindText, SourceID: "direct input", Method: "direct"}, nil
	}
}

// finish runs validate → detect → translate? → classify → summarize,
// then persists the record for identified owners.
func (s *Service) finish(ctx context.Context, start time.Time, cmd AnalyzeCommand, kind domain.InputKind, src domain.Source, raw, prefix string) (*AnalyzeResult, error) {
	res, err := s.pipeline(ctx, start, raw, cmd.AutoTranslate)
	if err != nil {
		s.failed(cmd.OwnerID, kind, err)
		return nil, err
	}
	res.Summary = prefix + res.Summary

	rec := domain.NewRecord(cmd.OwnerID, kind, src, res)
	out := &AnalyzeResult{Record: rec, Storage: s.persist(ctx, rec)}
	s.publish("analysis_completed", cmd.OwnerID, map[string]any{
		"type":       string(kind),
		"sentiment":  string(res.PrimarySentiment.Label),
		"language":   res.DetectedLanguage.ISOCode,
		"translated": res.TranslatedText != "",
		"storage":    out.Storage,
		"elapsed_ms": res.ProcessingTimeMs,
	})
	return out, nil
}

// pipeline is the text-only core shared by every use case.
func (s *Service) pipeline(ctx context.Context, start time.Time, raw string, autoTranslate bool) (domain.Result, error) {
	v, err := text.Validate(raw)
	if err != nil {
		return domain.Result{}, err
	}
	lang := text.DetectLanguage(v.Text)

	var translated string
	target := s.target()
	if autoTranslate && lang.ISOCode != target && lang.Confidence > minTranslateConfidence {
		targetName, ok := text.LanguageName(target)
		if !ok {
			targetName = target
		}
		if t := s.translate(ctx, v.Text, lang.Name, targetName); t != v.Text {
			translated = t
		}
	}

	// classification prefers the translation, the summary always reads the original
	classifyInput := v.Text
	if translated != "" {
		classifyInput = translated
	}
	scores := s.classify(ctx, classifyInput)
	primary := domain.Primary(scores)
	summary := s.summarize(ctx, domain.SummaryRequest{
		Text:       v.Text,
		Language:   lang.Name,
		Label:      primary.Label,
		Confidence: primary.Confidence,
	})

	return domain.Result{
		OriginalText:     v.Text,
		DetectedLanguage: lang,
		TranslatedText:   translated,
		SentimentScores:  scores,
		PrimarySentiment: primary,
		Summary:          summary,
		ProcessingTimeMs: s.now().Sub(start).Milliseconds(),
		Notice:           v.Notice,
	}, nil
}

func (s *Service) persist(ctx context.Context, rec *domain.Record) string {
	if rec.OwnerID == "" {
		return ""
	}
	if s.Store == nil {
		return StorageUnsaved
	}
	out, err := s.Store.Save(ctx, rec)
	if err != nil {
		s.logger().Error("analysis.persist.failed", "owner", rec.OwnerID, "error", err)
		return StorageUnsaved
	}
	if out.Origin == domain.OriginLocal {
		return StorageLocal
	}
	return StorageRemote
}

// inputKind guesses which input cmd carried when extraction failed before resolving it.
func inputKind(cmd AnalyzeCommand) domain.InputKind {
	switch {
	case cmd.File != nil && len(cmd.File.Data) > 0:
		return domain.KindFile
	case strings.TrimSpace(cmd.URL) != "":
		return domain.KindURL
	}
	return domain.KindText
}

func (s *Service) failed(owner string, kind domain.InputKind, err error) {
	props := map[string]any{"type": string(kind)}
	if e, ok := domain.AsError(err); ok {
		props["code"] = e.Code
	}
	s.publish("analysis_failed", owner, props)
}

func (s *Service) publish(name, owner string, props map[string]any) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(domain.Event{Name: name, OwnerID: owner, Props: props, At: s.now()})
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) target() string {
	if s.TargetLanguage == "" {
		return DefaultTarget
	}
	return strings.ToLower(s.TargetLanguage)
}
