package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookmuse/pkg/domain"
)

const (
	defaultSearchBaseURL = "https://openlibrary.org"
	defaultCoversBaseURL = "https://covers.openlibrary.org"

	searchFields = "key,title,author_name,cover_i,isbn,edition_key,first_publish_year,subject,number_of_pages_median,publisher,language,first_sentence"
)

// Client queries the Open Library search API and normalizes its loosely typed
// records into domain.Book. Search fails soft: on network or parse errors it
// returns no results so a conversation turn degrades instead of crashing.
type Client struct {
	searchBaseURL string
	coversBaseURL string
	httpClient    *http.Client
	log           *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL overrides the search API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.searchBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithCoversBaseURL overrides the covers host used for derived image URLs.
func WithCoversBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.coversBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger overrides the logger used for soft failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient constructs a catalog client.
func NewClient(options ...Option) *Client {
	c := &Client{
		searchBaseURL: defaultSearchBaseURL,
		coversBaseURL: defaultCoversBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		log:           slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
	return c
}

// SearchOptions carries optional filters for the search surface.
type SearchOptions struct {
	YearFrom int
	YearTo   int
	Sort     string
}

// Search runs the query against the catalog and returns normalized books.
// It tries multiple query formulations and accepts the first that yields at
// least one record. Failures resolve to an empty result, never an error.
func (c *Client) Search(ctx context.Context, query string, maxResults int) []domain.Book {
	return c.SearchWithOptions(ctx, query, maxResults, SearchOptions{})
}

// SearchWithOptions is Search with year-range and sort filters applied.
func (c *Client) SearchWithOptions(ctx context.Context, query string, maxResults int, opts SearchOptions) []domain.Book {
	query = strings.TrimSpace(query)
	if query == "" || maxResults <= 0 {
		return nil
	}
	for _, params := range c.formulations(query, maxResults, opts) {
		docs, err := c.search(ctx, params)
		if err != nil {
			c.log.Warn("catalog search failed", "query", query, "err", err)
			continue
		}
		if len(docs) == 0 {
			continue
		}
		books := make([]domain.Book, 0, len(docs))
		for _, doc := range docs {
			books = append(books, c.normalize(doc))
			if len(books) == maxResults {
				break
			}
		}
		return books
	}
	return nil
}

// formulations lists query parameter sets in preference order: the raw query
// as a general search first, then a title-field search with quoting stripped.
func (c *Client) formulations(query string, maxResults int, opts SearchOptions) []url.Values {
	base := func() url.Values {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(maxResults))
		params.Set("fields", searchFields)
		if opts.Sort != "" {
			params.Set("sort", opts.Sort)
		}
		if opts.YearFrom > 0 || opts.YearTo > 0 {
			from, to := opts.YearFrom, opts.YearTo
			if from <= 0 {
				from = 1
			}
			if to <= 0 {
				to = time.Now().UTC().Year()
			}
			params.Set("q", fmt.Sprintf("first_publish_year:[%d TO %d]", from, to))
		}
		return params
	}

	general := base()
	if q := general.Get("q"); q != "" {
		general.Set("q", query+" AND "+q)
	} else {
		general.Set("q", query)
	}

	titleOnly := base()
	titleOnly.Del("q")
	titleOnly.Set("title", strings.Trim(query, `"'`))

	return []url.Values{general, titleOnly}
}

func (c *Client) search(ctx context.Context, params url.Values) ([]searchDoc, error) {
	endpoint := c.searchBaseURL + "/search.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog responded %s", resp.Status)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return out.Docs, nil
}

// searchDoc mirrors the raw catalog record. Every field is optional.
type searchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	CoverID          int64    `json:"cover_i"`
	ISBN             []string `json:"isbn"`
	EditionKey       []string `json:"edition_key"`
	FirstPublishYear int      `json:"first_publish_year"`
	Subject          []string `json:"subject"`
	PagesMedian      int      `json:"number_of_pages_median"`
	Publisher        []string `json:"publisher"`
	Language         []string `json:"language"`
	FirstSentence    []string `json:"first_sentence"`
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}
