package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"bookmuse/pkg/domain"
)

const unknownTitle = "Unknown Title"

// normalize converts a raw catalog record into the closed Book shape with
// every field access defensively defaulted.
func (c *Client) normalize(doc searchDoc) domain.Book {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = unknownTitle
	}

	authors := make([]string, 0, len(doc.AuthorName))
	for _, name := range doc.AuthorName {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, name)
		}
	}

	book := domain.Book{
		ID:      bookID(doc, title),
		Title:   title,
		Authors: authors,
	}

	if covers := c.coverCandidates(doc); len(covers) > 0 {
		book.CoverURLs = covers
		book.CoverURL = covers[0]
	}
	if doc.FirstPublishYear > 0 {
		book.PublishedDate = strconv.Itoa(doc.FirstPublishYear)
	}
	if len(doc.Subject) > 0 {
		// Full list here; card-context callers truncate to the first 3.
		book.Categories = doc.Subject
	}
	if len(doc.FirstSentence) > 0 {
		book.Description = stripHTML(doc.FirstSentence[0])
	}
	if doc.PagesMedian > 0 {
		book.PageCount = doc.PagesMedian
	}
	if key := strings.TrimSpace(doc.Key); key != "" {
		book.InfoLink = defaultSearchBaseURL + key
	}
	if len(doc.Publisher) > 0 {
		book.Publisher = strings.TrimSpace(doc.Publisher[0])
	}
	if len(doc.Language) > 0 {
		book.Language = strings.TrimSpace(doc.Language[0])
	}
	return book
}

// coverCandidates collects every derivable cover URL in fixed priority order
// so the display layer can fail over: ISBN, numeric cover id, work OLID,
// edition OLID. An empty result means "render a generated placeholder".
func (c *Client) coverCandidates(doc searchDoc) []string {
	var urls []string
	usedISBN := ""
	if len(doc.ISBN) > 0 {
		if isbn := strings.TrimSpace(doc.ISBN[0]); isbn != "" {
			urls = append(urls, fmt.Sprintf("%s/b/isbn/%s-L.jpg", c.coversBaseURL, isbn))
			usedISBN = isbn
		}
	}
	if doc.CoverID > 0 {
		urls = append(urls, fmt.Sprintf("%s/b/id/%d-L.jpg", c.coversBaseURL, doc.CoverID))
	}
	if olid := workOLID(doc.Key); olid != "" && olid != usedISBN {
		urls = append(urls, fmt.Sprintf("%s/b/olid/%s-L.jpg", c.coversBaseURL, olid))
	}
	if len(doc.EditionKey) > 0 {
		if edition := strings.TrimSpace(doc.EditionKey[0]); edition != "" {
			urls = append(urls, fmt.Sprintf("%s/b/olid/%s-L.jpg", c.coversBaseURL, edition))
		}
	}
	return urls
}

// bookID prefers the catalog key and otherwise synthesizes a stable composite
// from the title and cover id.
func bookID(doc searchDoc, title string) string {
	if key := strings.TrimSpace(doc.Key); key != "" {
		return strings.TrimPrefix(key, "/works/")
	}
	slug := strings.ToLower(strings.Join(strings.Fields(title), "-"))
	return fmt.Sprintf("%s-%d", slug, doc.CoverID)
}

func workOLID(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strings.TrimPrefix(key, "/works/")
}

// stripHTML flattens markup occasionally present in catalog text fields down
// to plain text with collapsed whitespace.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return strings.TrimSpace(s)
	}
	tok := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.WriteString(tok.Token().Data)
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
