package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

// BatchCommand analyses many texts in one request, sequentially.
type BatchCommand struct {
	OwnerID       string
	Texts         []string
	AutoTranslate bool
}

type BatchResult struct {
	Results                 []domain.Result `json:"results"`
	TotalProcessed          int             `json:"totalProcessed"`
	AverageProcessingTimeMs int64           `json:"averageProcessingTimeMs"`
	Skipped                 int             `json:"skipped,omitempty"`
	// Unprocessed counts entries left when the batch time budget ran out.
	Unprocessed int `json:"unprocessed,omitempty"`
}

// AnalyzeBatch skips blank and invalid entries; the limit is checked before any work.
// Entries still waiting when BatchTimeout runs out are counted as Unprocessed
// and the results gathered so far are returned.
func (s *Service) AnalyzeBatch(ctx context.Context, cmd BatchCommand) (*BatchResult, error) {
	start := s.now()
	limit := s.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	if len(cmd.Texts) == 0 {
		return nil, domain.NewInvalidRequest("Texts must be a non-empty array")
	}
	if len(cmd.Texts) > limit {
		return nil, domain.NewInvalidRequest(fmt.Sprintf("Maximum %d texts allowed per batch", limit))
	}

	budget, cancel := context.WithTimeout(ctx, s.batchTimeout())
	defer cancel()

	out := &BatchResult{Results: []domain.Result{}}
	for i, raw := range cmd.Texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if budget.Err() != nil {
			out.Unprocessed = len(cmd.Texts) - i
			s.logger().Warn("analysis.batch.budget_exhausted", "index", i, "unprocessed", out.Unprocessed)
			break
		}
		if strings.TrimSpace(raw) == "" {
			out.Skipped++
			continue
		}
		res, err := s.pipeline(budget, s.now(), raw, cmd.AutoTranslate)
		if err != nil {
			if e, ok := domain.AsError(err); ok && e.Kind == domain.KindValidation {
				s.logger().Info("analysis.batch.skip", "index", i, "code", e.Code)
				out.Skipped++
				continue
			}
			if ctx.Err() == nil && budget.Err() != nil {
				out.Unprocessed = len(cmd.Texts) - i
				s.logger().Warn("analysis.batch.budget_exhausted", "index", i, "unprocessed", out.Unprocessed)
				break
			}
			return nil, err
		}
		rec := domain.NewRecord(cmd.OwnerID, domain.KindBatch, domain.Source{BatchSize: len(cmd.Texts)}, res)
		s.persist(ctx, rec)
		out.Results = append(out.Results, res)
	}

	out.TotalProcessed = len(out.Results)
	if out.TotalProcessed > 0 {
		total := s.now().Sub(start).Milliseconds()
		out.AverageProcessingTimeMs = int64(math.Round(float64(total) / float64(out.TotalProcessed)))
	}
	s.publish("analysis_completed", cmd.OwnerID, map[string]any{
		"type":      string(domain.KindBatch),
		"processed": out.TotalProcessed,
		"skipped":   out.Skipped,
	})
	return out, nil
}

func (s *Service) batchTimeout() time.Duration {
	if s.BatchTimeout > 0 {
		return s.BatchTimeout
	}
	return DefaultBatchTimeout
}
