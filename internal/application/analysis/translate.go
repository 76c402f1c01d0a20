package analysis

import (
	"context"
	"strings"

	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/domain/text"
)

type TranslateCommand struct {
	Text           string
	TargetLanguage string
	SourceLanguage string
}

type TranslateResult struct {
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// Translate is the standalone translation use case. The source language is
// detected when missing; failures fall back to the original text.
func (s *Service) Translate(ctx context.Context, cmd TranslateCommand) (*TranslateResult, error) {
	if strings.TrimSpace(cmd.Text) == "" {
		return nil, domain.NewInvalidRequest("Text is required and must be a non-empty string")
	}
	target := strings.TrimSpace(cmd.TargetLanguage)
	if target == "" {
		target = DefaultTarget
	}
	source := strings.TrimSpace(cmd.SourceLanguage)
	if source == "" {
		source = text.DetectLanguage(cmd.Text).Name
	}

	translated := s.translate(ctx, cmd.Text, displayName(source), displayName(target))
	return &TranslateResult{
		OriginalText:   cmd.Text,
		TranslatedText: translated,
		SourceLanguage: source,
		TargetLanguage: target,
	}, nil
}

// displayName turns an ISO code into a language name, leaving names as they are.
func displayName(lang string) string {
	if name, ok := text.LanguageName(lang); ok {
		return name
	}
	return lang
}
