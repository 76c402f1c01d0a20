package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/sentiment-api/internal/application/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/application/persistence"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/middleware"
)

const (
	HeaderRecordID      = "X-Record-ID"
	HeaderStorageStatus = "X-Storage-Status"

	maxJSONBody     = 1 << 20
	multipartMemory = 32 << 20

	// time left to encode the response once a batch finishes
	batchWriteSlack = 30 * time.Second
)

// Options configures the cross-cutting parts of the router.
type Options struct {
	AllowedOrigins []string
	APIKeys        map[string]string // owner -> key
	Limiter        *middleware.RateLimiter
	Checks         map[string]middleware.Check
	MaxUpload      int64
	BatchTimeout   time.Duration // write deadline extension for /analyze/batch
	Logger         *slog.Logger
}

type Router struct {
	analysis *appanalysis.Service
	history  *persistence.Gateway
	opts     Options
	log      *slog.Logger
}

func NewRouter(analysisSvc *appanalysis.Service, history *persistence.Gateway, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = appanalysis.DefaultMaxUpload
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = appanalysis.DefaultBatchTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	r := &Router{analysis: analysisSvc, history: history, opts: opts, log: opts.Logger}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(opts.Logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", middleware.OwnerHeader},
		ExposedHeaders: []string{HeaderRecordID, HeaderStorageStatus, "Content-Disposition"},
		MaxAge:         300,
	}))
	mux.Use(middleware.OwnerAuth(opts.APIKeys))
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimit(opts.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checks))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Post("/analyze", r.wrap(r.handleAnalyze))
	mux.Post("/analyze/batch", r.wrap(r.handleBatch))
	mux.Post("/analyze/file", r.wrap(r.handleFile))
	mux.Post("/analyze/url", r.wrap(r.handleURL))
	mux.Post("/analyze/multi", r.wrap(r.handleMulti))
	mux.Post("/translate", r.wrap(r.handleTranslate))

	mux.Route("/history", func(rt chi.Router) {
		rt.Use(middleware.RequireOwner)
		rt.Get("/", r.wrap(r.handleHistory))
		rt.Get("/search", r.wrap(r.handleSearch))
		rt.Get("/status", r.wrap(r.handleStatus))
		rt.Get("/export", r.wrap(r.handleExport))
		rt.Post("/sync", r.wrap(r.handleSync))
		rt.Patch("/{id}", r.wrap(r.handlePatch))
		rt.Delete("/{id}", r.wrap(r.handleDelete))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error       string   `json:"error"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		if strings.HasPrefix(req.URL.Path, "/analyze") {
			middleware.IncrementAnalysisFail()
		}

		if e, ok := domain.AsError(err); ok {
			body := errorBody{Error: e.Message, Details: e.Details, Suggestions: e.Suggestions}
			if body.Details == "" && e.Status >= 500 && e.Cause != nil {
				body.Details = e.Cause.Error()
			}
			writeJSON(w, e.Status, body)
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
			return
		}

		r.log.Error("http.handler.failed",
			"path", req.URL.Path,
			"req_id", chimw.GetReqID(req.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "An error occurred during analysis",
			Details: err.Error(),
		})
	}
}

// ==== ANALYSIS ====

type analyzeBody struct {
	Text          string `json:"text"`
	URL           string `json:"url"`
	AutoTranslate *bool  `json:"autoTranslate"`
}

func (b analyzeBody) autoTranslate() bool {
	return b.AutoTranslate == nil || *b.AutoTranslate
}

// POST /analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body analyzeBody
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	res, err := r.analysis.AnalyzeText(req.Context(), appanalysis.AnalyzeCommand{
		OwnerID:       middleware.OwnerFromContext(req.Context()),
		Text:          body.Text,
		AutoTranslate: body.autoTranslate(),
	})
	if err != nil {
		return err
	}
	return r.writeAnalysis(w, res)
}

// POST /analyze/batch
func (r *Router) handleBatch(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Texts         []string `json:"texts"`
		AutoTranslate *bool    `json:"autoTranslate"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	deadline := time.Now().Add(r.opts.BatchTimeout + batchWriteSlack)
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil {
		r.log.Debug("http.batch.deadline_unsupported", "error", err)
	}
	res, err := r.analysis.AnalyzeBatch(req.Context(), appanalysis.BatchCommand{
		OwnerID:       middleware.OwnerFromContext(req.Context()),
		Texts:         body.Texts,
		AutoTranslate: body.AutoTranslate == nil || *body.AutoTranslate,
	})
	if err != nil {
		return err
	}
	for _, rr := range res.Results {
		middleware.RecordAnalysis(string(rr.PrimarySentiment.Label), "batch")
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// POST /analyze/file (multipart, field "file")
func (r *Router) handleFile(w http.ResponseWriter, req *http.Request) error {
	file, form, err := r.parseUpload(w, req)
	if err != nil {
		return err
	}
	if file == nil {
		return domain.NewInvalidRequest("No file uploaded")
	}
	res, err := r.analysis.AnalyzeFile(req.Context(), appanalysis.AnalyzeCommand{
		OwnerID:       middleware.OwnerFromContext(req.Context()),
		File:          file,
		AutoTranslate: form.autoTranslate(),
	})
	if err != nil {
		return err
	}
	return r.writeAnalysis(w, res)
}

// POST /analyze/url
func (r *Router) handleURL(w http.ResponseWriter, req *http.Request) error {
	var body analyzeBody
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	res, err := r.analysis.AnalyzeURL(req.Context(), appanalysis.AnalyzeCommand{
		OwnerID:       middleware.OwnerFromContext(req.Context()),
		URL:           body.URL,
		AutoTranslate: body.autoTranslate(),
	})
	if err != nil {
		return err
	}
	return r.writeAnalysis(w, res)
}

// POST /analyze/multi (JSON {text|url} or multipart {file|text|url})
func (r *Router) handleMulti(w http.ResponseWriter, req *http.Request) error {
	cmd := appanalysis.AnalyzeCommand{OwnerID: middleware.OwnerFromContext(req.Context())}

	if isMultipart(req) {
		file, form, err := r.parseUpload(w, req)
		if err != nil {
			return err
		}
		cmd.File = file
		cmd.Text = form.Text
		cmd.URL = form.URL
		cmd.AutoTranslate = form.autoTranslate()
	} else if req.ContentLength != 0 {
		var body analyzeBody
		if err := decodeJSON(req, &body); err != nil {
			return err
		}
		cmd.Text = body.Text
		cmd.URL = body.URL
		cmd.AutoTranslate = body.autoTranslate()
	}

	res, err := r.analysis.AnalyzeMulti(req.Context(), cmd)
	if err != nil {
		return err
	}
	return r.writeAnalysis(w, res)
}

// POST /translate
func (r *Router) handleTranslate(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"targetLanguage"`
		SourceLanguage string `json:"sourceLanguage"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	res, err := r.analysis.Translate(req.Context(), appanalysis.TranslateCommand{
		Text:           body.Text,
		TargetLanguage: body.TargetLanguage,
		SourceLanguage: body.SourceLanguage,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (r *Router) writeAnalysis(w http.ResponseWriter, res *appanalysis.AnalyzeResult) error {
	if res.Storage != "" {
		w.Header().Set(HeaderStorageStatus, res.Storage)
		if res.Record.ID != "" {
			w.Header().Set(HeaderRecordID, res.Record.ID)
		}
	}
	middleware.RecordAnalysis(string(res.Record.PrimarySentiment.Label), res.Storage)
	writeJSON(w, http.StatusOK, res.Record.Result)
	return nil
}

// parseUpload reads the optional "file" part plus the text/url/autoTranslate
// form fields. A missing file is not an error here.
func (r *Router) parseUpload(w http.ResponseWriter, req *http.Request) (*appanalysis.File, analyzeBody, error) {
	var form analyzeBody
	// sisakan ruang untuk field lain di multipart
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUpload+multipartMemory)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, form, domain.NewFileTooLarge(r.opts.MaxUpload)
		}
		return nil, form, domain.NewInvalidRequest("Invalid multipart form: " + err.Error())
	}
	form.Text = req.FormValue("text")
	form.URL = req.FormValue("url")
	if v := req.FormValue("autoTranslate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, form, domain.NewInvalidRequest("autoTranslate must be a boolean")
		}
		form.AutoTranslate = &b
	}

	f, hdr, err := req.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, form, nil
	}
	if err != nil {
		return nil, form, domain.NewInvalidRequest("Invalid file upload: " + err.Error())
	}
	defer f.Close()

	if hdr.Size > r.opts.MaxUpload {
		return nil, form, domain.NewFileTooLarge(r.opts.MaxUpload)
	}
	ct := hdr.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	sniff := ct == "" || ct == "application/octet-stream"
	if !sniff && !appanalysis.AllowedFileType(ct) {
		return nil, form, domain.NewUnsupportedFileType(ct)
	}

	data, err := io.ReadAll(io.LimitReader(f, r.opts.MaxUpload+1))
	if err != nil {
		return nil, form, domain.NewInvalidRequest("Invalid file upload: " + err.Error())
	}
	if int64(len(data)) > r.opts.MaxUpload {
		return nil, form, domain.NewFileTooLarge(r.opts.MaxUpload)
	}
	if sniff {
		ct, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	return &appanalysis.File{Name: hdr.Filename, ContentType: ct, Data: data}, form, nil
}

func isMultipart(req *http.Request) bool {
	mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func decodeJSON(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewInvalidRequest("Request body is required")
		}
		return domain.NewInvalidRequest("Invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
