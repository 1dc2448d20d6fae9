package sqlitefts

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

// FTS5 rejects most punctuation in MATCH expressions, so everything
// outside word characters and whitespace is stripped before querying.
var matchSyntaxStripper = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

// Index serves full-text queries over pre-built per-category SQLite
// FTS5 databases. The databases are built by an external ingestion
// process; this adapter only reads.
type Index struct {
	dbs map[string]*sql.DB
}

func NewIndex(dbs map[string]*sql.DB) *Index {
	return &Index{dbs: dbs}
}

func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (ix *Index) Search(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	db, ok := ix.dbs[filter.Category]
	if !ok {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "lexical search",
			fmt.Errorf("no lexical index for category %q", filter.Category))
	}

	cleaned := cleanMatchQuery(query)
	if cleaned == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
SELECT chunk_content
FROM chunks
WHERE chunk_content MATCH ?
LIMIT ?
`, cleaned, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "lexical search", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var candidates []domain.Candidate
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "scan lexical row", err)
		}
		candidates = append(candidates, domain.Candidate{
			Content: content,
			Origin:  domain.OriginLexical,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "iterate lexical rows", err)
	}
	return candidates, nil
}

func cleanMatchQuery(query string) string {
	cleaned := matchSyntaxStripper.ReplaceAllString(query, "")
	return strings.Join(strings.Fields(cleaned), " ")
}
