package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/search"
)

// DefaultSearchCandidates caps how many matching rows are read from storage
// before ranking.
const DefaultSearchCandidates = 500

// SearchService ranks messages across all conversations against a free-text
// query. Storage narrows candidates to messages containing every query term; ranking happens in a
// throwaway in-memory index.
type SearchService struct {
	DB         *gorm.DB
	Candidates int
	Opts       []search.Option
}

// NewSearchService constructs a SearchService with default limits.
func NewSearchService(db *gorm.DB, opts ...search.Option) *SearchService {
	return &SearchService{DB: db, Candidates: DefaultSearchCandidates, Opts: opts}
}

// Search returns up to limit results, best first. A query made only of
// stop-words or whitespace yields an empty slice.
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	terms := search.Terms(query)
	if len(terms) == 0 {
		return []search.Result{}, nil
	}
	rows, err := repo.SearchMessages(ctx, s.DB, terms, s.Candidates)
	if err != nil {
		return nil, storageErr("search messages", err, nil)
	}
	docs := make([]search.Document, 0, len(rows))
	for _, m := range rows {
		docs = append(docs, search.Document{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			Role:           m.Role,
			Text:           m.Content,
			Timestamp:      m.Timestamp,
		})
	}
	out := search.NewIndex(docs, s.Opts...).TopK(query, limit)
	if out == nil {
		out = []search.Result{}
	}
	return out, nil
}
