package crawler

import (
	"context"

	"github.com/nao1215/crudcrawl/internal/model"
)

// Recorder stores executions and confirmed relations as they happen, so an
// interrupted crawl still leaves a history.
type Recorder interface {
	RecordExecution(ctx context.Context, sessionID string, rec model.ExecutionRecord) error
	RecordRelation(ctx context.Context, sessionID string, rel model.Relation) error
}
