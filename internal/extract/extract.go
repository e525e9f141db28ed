package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"bookmuse/pkg/ai"
	"bookmuse/pkg/domain"
)

const (
	// MaxBooks caps the cards attached to one assistant reply.
	MaxBooks = 3
	// quotedLayerCap stops the quoted-span scan once the candidate set holds
	// this many entries; that layer is noisy and gets no more room.
	quotedLayerCap = 5

	minQuotedLen = 5
	maxQuotedLen = 50
)

// boldTitlePattern matches the reply convention `**"Title" by Author**`.
var boldTitlePattern = regexp.MustCompile(`\*\*"([^"]+)" by ([^*]+)\*\*`)

// quotedSpanPattern matches any double-quoted span.
var quotedSpanPattern = regexp.MustCompile(`"([^"]+)"`)

// Searcher resolves a free-text query to catalog books. It fails soft.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []domain.Book
}

// Engine decides whether an assistant reply warrants book cards and resolves
// up to MaxBooks candidates against the catalog. No failure inside the engine
// ever escapes: every error path resolves to "no cards".
type Engine struct {
	gen     ai.TextGenerator
	catalog Searcher
	log     *slog.Logger
}

// Option customizes the engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine constructs the extraction engine.
func NewEngine(gen ai.TextGenerator, catalog Searcher, options ...Option) *Engine {
	e := &Engine{gen: gen, catalog: catalog, log: slog.Default()}
	for _, option := range options {
		if option != nil {
			option(e)
		}
	}
	return e
}

// Extract turns an assistant reply into at most MaxBooks verified catalog
// entries. When the relevance gate answers no, it returns nil without any
// catalog traffic.
func (e *Engine) Extract(ctx context.Context, reply, userMessage string) []domain.Book {
	if !e.shouldAttachBooks(ctx, reply, userMessage) {
		return nil
	}
	candidates := e.collectCandidates(ctx, reply, userMessage)
	if len(candidates) == 0 {
		return nil
	}
	return e.resolve(ctx, candidates)
}

// shouldAttachBooks asks the classifier whether the reply names specific
// recommendations. Only a literal YES (any case) counts; when the classifier
// call fails, a deterministic heuristic takes over.
func (e *Engine) shouldAttachBooks(ctx context.Context, reply, userMessage string) bool {
	answer, err := e.gen.GenerateText(ctx, "", fmt.Sprintf(relevanceGatePrompt, reply))
	if err != nil {
		e.log.Debug("relevance gate call failed, using heuristic", "err", err)
		return relevanceHeuristic(reply, userMessage)
	}
	return strings.EqualFold(strings.TrimSpace(answer), "YES")
}

func relevanceHeuristic(reply, userMessage string) bool {
	if strings.Contains(strings.ToLower(reply), "recommend") {
		return true
	}
	if boldTitlePattern.MatchString(reply) {
		return true
	}
	return strings.Contains(strings.ToLower(userMessage), "books like")
}

// candidateSet keeps insertion order with uniqueness by normalized string.
type candidateSet struct {
	seen  map[string]struct{}
	items []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{seen: make(map[string]struct{})}
}

func (s *candidateSet) add(candidate string) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return
	}
	key := strings.ToLower(strings.Join(strings.Fields(candidate), " "))
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, candidate)
}

func (s *candidateSet) len() int { return len(s.items) }

// collectCandidates layers the extraction strategies into one deduplicated
// ordered set: classifier output first, then the bold-title pattern, the
// well-known-title table, and finally the capped quoted-span scan.
func (e *Engine) collectCandidates(ctx context.Context, reply, userMessage string) []string {
	set := newCandidateSet()

	for _, candidate := range e.llmCandidates(ctx, reply, userMessage) {
		set.add(candidate)
	}
	for _, match := range boldTitlePattern.FindAllStringSubmatch(reply, -1) {
		title := strings.TrimSpace(match[1])
		author := strings.TrimSpace(match[2])
		if len(title) < 3 {
			continue
		}
		set.add(title + " " + author)
	}
	lowerReply := strings.ToLower(reply)
	for _, entry := range wellKnownTitles {
		if strings.Contains(lowerReply, entry.keyword) {
			set.add(entry.search)
		}
	}
	for _, match := range quotedSpanPattern.FindAllStringSubmatch(reply, -1) {
		if set.len() >= quotedLayerCap {
			break
		}
		span := strings.TrimSpace(match[1])
		if len(span) <= minQuotedLen || len(span) >= maxQuotedLen {
			continue
		}
		if strings.ContainsAny(span, "?!") {
			continue
		}
		set.add(span)
	}
	return set.items
}

// llmCandidates asks the model for up to MaxBooks "Title Author" strings as a
// JSON array. Anything that fails strict parsing discards the whole layer.
func (e *Engine) llmCandidates(ctx context.Context, reply, userMessage string) []string {
	raw, err := e.gen.GenerateText(ctx, "", fmt.Sprintf(candidatePrompt, userMessage, reply))
	if err != nil {
		e.log.Debug("candidate extraction call failed", "err", err)
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &items); err != nil {
		return nil
	}
	if len(items) > MaxBooks {
		items = items[:MaxBooks]
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// resolve searches the catalog for the first MaxBooks candidates
// concurrently, keeps the first hit per candidate, and reassembles results in
// candidate order. Candidates without hits contribute nothing.
func (e *Engine) resolve(ctx context.Context, candidates []string) []domain.Book {
	if len(candidates) > MaxBooks {
		candidates = candidates[:MaxBooks]
	}
	results := make([]*domain.Book, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			if books := e.catalog.Search(gctx, candidate, 1); len(books) > 0 {
				results[i] = &books[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	books := make([]domain.Book, 0, len(candidates))
	for _, book := range results {
		if book != nil {
			books = append(books, *book)
		}
	}
	if len(books) == 0 {
		return nil
	}
	if len(books) > MaxBooks {
		books = books[:MaxBooks]
	}
	return books
}
