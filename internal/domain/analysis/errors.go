package analysis

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by who has to act on them.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindExtraction     Kind = "extraction_failure"
	KindValidation     Kind = "validation_failure"
	KindPersistence    Kind = "persistence_failure"
	KindNotFound       Kind = "not_found"
)

// Error codes carried by Error.Code.
const (
	CodeEmptyInput          = "EMPTY_INPUT"
	CodeTooShort            = "TOO_SHORT"
	CodeLikelyCorrupted     = "LIKELY_CORRUPTED"
	CodeRepetitive          = "REPETITIVE"
	CodeInsufficientContent = "INSUFFICIENT_CONTENT"

	CodeOCRFailed              = "OCR_FAILED"
	CodePDFCorrupted           = "PDF_CORRUPTED"
	CodePDFNoText              = "PDF_NO_TEXT"
	CodePDFFailed              = "PDF_FAILED"
	CodeURLFetchFailed         = "URL_FETCH_FAILED"
	CodeUnsupportedContentType = "UNSUPPORTED_CONTENT_TYPE"
	CodeUnsupportedFileType    = "UNSUPPORTED_FILE_TYPE"
	CodeFileTooLarge           = "FILE_TOO_LARGE"

	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeStorage        = "STORAGE_FAILED"
)

var (
	// ErrPermissionDenied is returned by a store that refused the caller.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnavailable is returned by a store or service that cannot be reached.
	ErrUnavailable = errors.New("service unavailable")
	ErrNotFound    = errors.New("record not found")
	// ErrLocked means another process holds the lease.
	ErrLocked = errors.New("lease held by another process")
	// ErrBadResponse marks an external reply that could not be understood.
	ErrBadResponse  = errors.New("unexpected response from external service")
	ErrRateLimited  = errors.New("external service rate limited")
	ErrUnauthorized = errors.New("external service rejected credentials")
	// ErrNotConfigured is returned by clients created without credentials.
	ErrNotConfigured = errors.New("external service not configured")
)

// Error is the user-facing error of the analysis pipeline.
type Error struct {
	Kind        Kind
	Code        string
	Status      int
	Message     string
	Details     string
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

func NewInvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Code: CodeInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

func NewValidation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Status: http.StatusBadRequest, Message: msg}
}

func NewExtraction(code, msg string, cause error) *Error {
	return &Error{Kind: KindExtraction, Code: code, Status: http.StatusUnprocessableEntity, Message: msg, Cause: cause}
}

func NewUnsupportedContentType(contentType string) *Error {
	return &Error{
		Kind:    KindExtraction,
		Code:    CodeUnsupportedContentType,
		Status:  http.StatusUnprocessableEntity,
		Message: "Unsupported content type",
		Details: contentType,
	}
}

func NewUnsupportedFileType(mime string) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Code:    CodeUnsupportedFileType,
		Status:  http.StatusUnsupportedMediaType,
		Message: "Invalid file type. Only images and PDFs are allowed.",
		Details: mime,
	}
}

func NewFileTooLarge(max int64) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Code:    CodeFileTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("File exceeds the %d MB upload limit", max>>20),
	}
}

func NewNotFound(id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("record not found: %s", id),
		Cause:   ErrNotFound,
	}
}

func NewPersistence(msg string, cause error) *Error {
	return &Error{Kind: KindPersistence, Code: CodeStorage, Status: http.StatusServiceUnavailable, Message: msg, Cause: cause}
}
