package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
)

// FormatVersion is written into every export header.
const FormatVersion = "1"

// header is the first JSONL line written by ExportJSONL.
type header struct {
	Version         string    `json:"version"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	Since           time.Time `json:"since,omitzero"`
	EvaluationCount int       `json:"evaluation_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string            `json:"type"`
	Data *model.Evaluation `json:"data"`
}

// ExportJSONL writes the evaluation audit trail as JSONL to w, oldest first.
// Only evaluations recorded strictly after since are included; a zero since
// exports everything. It returns the number of evaluations written.
func ExportJSONL(ctx context.Context, s store.Store, since time.Time, w io.Writer) (int, error) {
	evals, err := s.ListEvaluations(ctx, model.EvaluationFilter{Since: since, OldestFirst: true})
	if err != nil {
		return 0, fmt.Errorf("list evaluations: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:         FormatVersion,
		Type:            "header",
		Timestamp:       time.Now().UTC(),
		Since:           since,
		EvaluationCount: len(evals),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	for i, ev := range evals {
		if err := enc.Encode(record{Type: "evaluation", Data: ev}); err != nil {
			return i, fmt.Errorf("encode evaluation %s: %w", ev.ID, err)
		}
	}
	return len(evals), nil
}
