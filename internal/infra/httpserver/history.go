package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/infra/export"
	"github.com/bryanwahyu/sentiment-api/internal/middleware"
)

const exportLimit = 100

// GET /history?limit=&favorites=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	owner := middleware.OwnerFromContext(req.Context())
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	limit = middleware.ValidateLimit(limit)

	var (
		recs []*domain.Record
		err  error
	)
	if fav, _ := strconv.ParseBool(q.Get("favorites")); fav {
		recs, err = r.history.Favorites(req.Context(), owner, limit)
	} else {
		recs, err = r.history.List(req.Context(), owner, domain.ListFilter{Limit: limit})
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, historyView(recs))
	return nil
}

// GET /history/search?q=
func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) error {
	term := middleware.SanitizeString(req.URL.Query().Get("q"))
	if term == "" {
		return domain.NewInvalidRequest("Search query is required")
	}
	recs, err := r.history.Search(req.Context(), middleware.OwnerFromContext(req.Context()), term)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, historyView(recs))
	return nil
}

// PATCH /history/{id}
// Body: {"favorite": true, "tags": ["a","b"]}
func (r *Router) handlePatch(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return domain.NewInvalidRequest(err.Error())
	}
	var patch domain.Patch
	if err := decodeJSON(req, &patch); err != nil {
		return err
	}
	if patch.Favorite == nil && patch.Tags == nil {
		return domain.NewInvalidRequest("Nothing to update: provide favorite or tags")
	}
	for i, t := range patch.Tags {
		patch.Tags[i] = middleware.SanitizeString(t)
	}
	rec, err := r.history.Update(req.Context(), middleware.OwnerFromContext(req.Context()), id, patch)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, recordView(rec))
	return nil
}

// DELETE /history/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return domain.NewInvalidRequest(err.Error())
	}
	if err := r.history.Delete(req.Context(), middleware.OwnerFromContext(req.Context()), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /history/sync
func (r *Router) handleSync(w http.ResponseWriter, req *http.Request) error {
	report, err := r.history.Restore(req.Context(), middleware.OwnerFromContext(req.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, report)
	return nil
}

// GET /history/status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	st, err := r.history.Status(req.Context(), middleware.OwnerFromContext(req.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

// GET /history/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	recs, err := r.history.List(req.Context(), middleware.OwnerFromContext(req.Context()), domain.ListFilter{Limit: exportLimit})
	if err != nil {
		return err
	}
	data, err := export.HistoryXLSX(recs)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("sentiment-history-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		// header sudah terkirim, cukup dicatat
		r.log.Warn("http.export.write_failed", "error", err)
	}
	return nil
}

// record is the wire shape of a history entry; storage is derived from the id.
type record struct {
	*domain.Record
	Storage string `json:"storage"`
}

func recordView(rec *domain.Record) record {
	return record{Record: rec, Storage: rec.Origin.String()}
}

func historyView(recs []*domain.Record) []record {
	out := make([]record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordView(rec))
	}
	return out
}
