// Package search provides a small, deterministic, concurrency-safe in-memory
// index over conversation messages:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for stop-words, minimum length and document caps
//   - Unicode-aware tokenization
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and ordering (stable for ties)
//
// An index is built per query from rows read out of storage and then thrown
// away; it is never kept alongside the database as a second copy of history.
//
// Scoring uses Jaccard similarity between the query token set and each
// message's token set: score = |Q ∩ M| / |Q ∪ M|.
package search

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Document is one searchable message.
type Document struct {
	MessageID      int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Result is a ranked message with an excerpt around the first match.
type Result struct {
	Document
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minRunes     int
	stopwords    map[string]struct{}
	maxDocs      int
	snippetRunes int
}

func defaultConfig() config {
	return config{
		minRunes:     1,
		stopwords:    defaultStopwords,
		maxDocs:      0,
		snippetRunes: 160,
	}
}

// WithMinRunes skips documents shorter than n runes.
func WithMinRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minRunes = n
		}
	}
}

// WithStopwords replaces the default English stop-word list. An empty list
// keeps the default.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithSnippetRunes sets the excerpt length of results.
func WithSnippetRunes(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.snippetRunes = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	Document
	plain  string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over docs. Message content is flattened from
// Markdown before tokenizing.
func NewIndex(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		plain := strings.TrimSpace(normalizeWhitespace(PlainText(d.Text)))
		if plain == "" {
			continue
		}
		if cfg.minRunes > 0 && utf8.RuneCountInString(plain) < cfg.minRunes {
			continue
		}
		toks := tokenize(plain, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{Document: d, plain: plain, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

// TopK returns up to k best-matching messages by Jaccard similarity. Ties go
// to the newer message, then the lower id.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		d     *doc
		score float64
	}
	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for n := range i.docs {
		d := &i.docs[n]
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{d: d, score: float64(over) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if !buf[a].d.Timestamp.Equal(buf[b].d.Timestamp) {
			return buf[a].d.Timestamp.After(buf[b].d.Timestamp)
		}
		return buf[a].d.MessageID < buf[b].d.MessageID
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		d := buf[n].d
		out[n] = Result{
			Document: d.Document,
			Snippet:  excerpt(d.plain, qTokens, i.cfg.snippetRunes),
			Score:    buf[n].score,
		}
	}
	return out
}

// Terms returns the distinct lower-cased query words minus stop-words, in
// order of first appearance. Storage uses them to narrow candidates.
func Terms(q string) []string {
	words := wordRE.FindAllString(strings.ToLower(q), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := defaultStopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// excerpt cuts about n runes of text starting a little before the first
// query token it contains.
func excerpt(text string, q map[string]struct{}, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	start := 0
	lower := strings.ToLower(text)
	for _, loc := range wordRE.FindAllStringIndex(lower, -1) {
		if _, ok := q[lower[loc[0]:loc[1]]]; ok {
			start = utf8.RuneCountInString(lower[:loc[0]])
			break
		}
	}
	start -= n / 4
	if start < 0 {
		start = 0
	}
	end := start + n
	if end > len(runes) {
		end = len(runes)
		start = max(0, end-n)
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
