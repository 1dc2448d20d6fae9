package usecase

import (
	"fmt"
	"strings"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

const truncationMarker = "[Contenido truncado...]"

// assembleContext concatenates the candidate contents into one block,
// enforces the word budget, and verifies the block is grounded in the
// question. Returns domain.ErrUngrounded when no whitespace-delimited
// term of the question appears in the block (case-insensitive); the
// caller must short-circuit to the canonical refusal.
//
// The grounding test passes on any single shared term; the refusal
// path depends on these exact semantics.
func assembleContext(results []domain.FusedResult, question string, maxWords int) (domain.ContextBlock, error) {
	if maxWords <= 0 {
		maxWords = 1000000
	}

	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "DOCUMENTO %d:\n%s\n\n", i+1, res.Content)
	}
	text := b.String()

	block := domain.ContextBlock{Text: text, WordCount: countWords(text)}
	if block.WordCount > maxWords {
		words := strings.Fields(text)[:maxWords]
		block.Text = strings.Join(words, " ") + "\n\n" + truncationMarker
		block.WordCount = maxWords
		block.Truncated = true
	}

	if !isGrounded(question, block.Text) {
		return domain.ContextBlock{}, domain.ErrUngrounded
	}
	return block, nil
}

func isGrounded(question, contextText string) bool {
	lowerContext := strings.ToLower(contextText)
	for _, term := range strings.Fields(strings.ToLower(question)) {
		if strings.Contains(lowerContext, term) {
			return true
		}
	}
	return false
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
