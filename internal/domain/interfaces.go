package domain

import (
	"context"
	"time"
)

// PageSpan marks where a page starts inside a Document's content, in runes.
type PageSpan struct {
	Number int
	Start  int
}

// Document represents a single PDF file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
	Pages   []PageSpan
}

// PageAt returns the page number containing the given rune offset.
// Documents without page spans report page 0.
func (d Document) PageAt(offset int) int {
	page := 0
	for _, p := range d.Pages {
		if p.Start > offset {
			break
		}
		page = p.Number
	}
	return page
}

// Chunk is a bounded span of a document used for indexing.
// Start and End are rune offsets into the document content, End exclusive.
type Chunk struct {
	ID         string
	DocumentID string
	Source     string
	Page       int
	Index      int
	Start      int
	End        int
	Text       string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Turn is one completed question/answer exchange.
type Turn struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Sources   []string  `json:"sources"`
}

// Message roles understood by chat models.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message sent to a language model.
type Message struct {
	Role    string
	Content string
}

// Loader reads raw documents from a directory.
type Loader interface {
	Load(ctx context.Context, dir string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts text into vectors using a fixed model.
type Embedder interface {
	Model() string
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel generates a reply for a list of messages.
type ChatModel interface {
	Model() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
