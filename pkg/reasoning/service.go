package reasoning

import (
	"context"
	"encoding/json"
)

// Service produces a structured execution plan for a task. Implementations
// must return a single JSON object; callers validate it against the task
// type's output schema before acting on it.
type Service interface {
	Generate(ctx context.Context, prompt string, taskContext json.RawMessage) (json.RawMessage, error)
}
