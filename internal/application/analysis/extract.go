package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

var allowedFileTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

var pdfSuggestions = []string{
	"Try converting the PDF to text format using a PDF reader",
	"Use an image file instead (JPEG, PNG)",
	"Check if the PDF is password-protected",
	"Ensure the PDF contains actual text, not just scanned images",
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// AllowedFileType reports whether uploads of contentType are accepted.
func AllowedFileType(contentType string) bool {
	return allowedFileTypes[strings.ToLower(contentType)]
}

func (s *Service) extractFile(ctx context.Context, f File) (string, error) {
	ct := strings.ToLower(f.ContentType)
	if !AllowedFileType(ct) {
		return "", domain.NewUnsupportedFileType(f.ContentType)
	}
	limit := s.MaxUpload
	if limit <= 0 {
		limit = DefaultMaxUpload
	}
	if int64(len(f.Data)) > limit {
		return "", domain.NewFileTooLarge(limit)
	}

	if ct == "application/pdf" {
		if s.PDFs == nil {
			return "", domain.NewExtraction(domain.CodePDFFailed, "PDF extraction is not available", nil)
		}
		out, err := s.PDFs.Extract(ctx, f.Data)
		if err != nil {
			s.logger().Warn("analysis.extract.pdf_failed", "file", f.Name, "error", err)
			return "", pdfRemediation(err)
		}
		return out, nil
	}

	if s.Images == nil {
		return "", domain.NewExtraction(domain.CodeOCRFailed, "Image text recognition is not available", nil)
	}
	out, err := s.Images.Extract(ctx, f.Data)
	if err != nil {
		s.logger().Warn("analysis.extract.ocr_failed", "file", f.Name, "error", err)
		return "", withSuggestions(err, domain.CodeOCRFailed,
			"Use a clearer image with legible, horizontal text",
			"Crop the image to the text you want analysed",
			"Paste the text directly instead",
		)
	}
	return out, nil
}

func (s *Service) extractURL(ctx context.Context, u string) (string, error) {
	if s.Web == nil {
		return "", domain.NewExtraction(domain.CodeURLFetchFailed, "URL extraction is not available", nil)
	}
	out, err := s.Web.ExtractURL(ctx, u)
	if err != nil {
		s.logger().Warn("analysis.extract.url_failed", "url", u, "error", err)
		return "", withSuggestions(err, domain.CodeURLFetchFailed,
			"Check that the URL is correct and publicly accessible",
			"Make sure the page contains readable text, not only scripts or images",
			"Copy the page text and analyse it directly",
		)
	}
	return out, nil
}

// pdfRemediation rewrites PDF failures into user-facing guidance.
func pdfRemediation(err error) error {
	e, ok := domain.AsError(err)
	if !ok {
		e = domain.NewExtraction(domain.CodePDFFailed, "PDF Processing Error", err)
	}
	out := *e
	switch e.Code {
	case domain.CodePDFCorrupted:
		out.Message = "PDF Text Extraction Failed"
		out.Details = "The PDF appears to be a scanned document or image-based PDF that cannot be processed as text. Try converting the PDF to text format or using an image file instead."
	case domain.CodePDFNoText:
		out.Message = "No Text Found in PDF"
		out.Details = "This PDF appears to contain no extractable text. It might be a scanned document, image-based PDF, or password-protected file."
	default:
		out.Message = "PDF Processing Error"
		out.Details = "Unable to extract text from this PDF. The file might be corrupted, password-protected, or in an unsupported format."
	}
	out.Suggestions = pdfSuggestions
	return &out
}

func withSuggestions(err error, code string, hints ...string) error {
	e, ok := domain.AsError(err)
	if !ok {
		e = domain.NewExtraction(code, "Failed to extract text", err)
		e.Details = err.Error()
	}
	out := *e
	if len(out.Suggestions) == 0 {
		out.Suggestions = hints
	}
	return &out
}

// archive uploads the original file, best effort. Returns "" when skipped or failed.
func (s *Service) archive(ctx context.Context, owner string, f File) string {
	if s.Artifacts == nil {
		return ""
	}
	if owner == "" {
		owner = "anonymous"
	}
	name := unsafeKeyChars.ReplaceAllString(filepath.Base(f.Name), "_")
	key := fmt.Sprintf("uploads/%s/%s/%s-%s", owner, s.now().UTC().Format("2006/01/02"), uuid.NewString(), name)
	url, err := s.Artifacts.Upload(ctx, key, f.Data, f.ContentType)
	if err != nil {
		s.logger().Warn("analysis.archive.failed", "key", key, "error", err)
		return ""
	}
	return url
}
