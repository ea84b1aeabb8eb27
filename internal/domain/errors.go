package domain

import "errors"

var (
	// ErrMissingCredential indicates a required API key environment variable is empty.
	ErrMissingCredential = errors.New("missing credential")

	// ErrEmbeddingModelMismatch indicates the index was built with a different
	// embedding model than the one configured for querying it.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")

	// ErrEmptyQuery indicates a blank question was submitted.
	ErrEmptyQuery = errors.New("empty query")
)
