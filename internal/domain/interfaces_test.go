package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_PageAt(t *testing.T) {
	doc := Document{Pages: []PageSpan{{Number: 1, Start: 0}, {Number: 2, Start: 100}, {Number: 3, Start: 250}}}

	assert.Equal(t, 1, doc.PageAt(0))
	assert.Equal(t, 1, doc.PageAt(99))
	assert.Equal(t, 2, doc.PageAt(100))
	assert.Equal(t, 3, doc.PageAt(4000))
	assert.Equal(t, 0, Document{}.PageAt(10))
}
