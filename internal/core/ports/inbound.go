package ports

import (
	"context"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

// QuestionService is the inbound contract for one conversation turn:
// a question in, a grounded answer (or refusal, or error text) out.
type QuestionService interface {
	Ask(ctx context.Context, threadID, category string, query domain.Query) (*domain.Answer, error)
}
