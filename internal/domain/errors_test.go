package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := NewError(KindFetch, io.ErrUnexpectedEOF, "GET %s", "https://example.com")
	wrapped := fmt.Errorf("extract: %w", err)

	assert.True(t, errors.Is(wrapped, ErrFetch))
	assert.False(t, errors.Is(wrapped, ErrParse))
	assert.True(t, errors.Is(wrapped, io.ErrUnexpectedEOF), "cause should stay reachable")
	assert.Equal(t, KindFetch, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "fetch_error: GET https://example.com: unexpected EOF", err.Error())
}

func TestErrorKind_Category(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want Category
	}{
		{KindFetch, CategoryExtraction},
		{KindUnsupportedFormat, CategoryExtraction},
		{KindEmptyContent, CategoryExtraction},
		{KindParse, CategoryExtraction},
		{KindEmptyQueue, CategorySynthesis},
		{KindProviderUnavailable, CategorySynthesis},
		{KindProviderRateLimited, CategorySynthesis},
		{KindMalformedResponse, CategorySynthesis},
		{KindStore, CategoryStore},
		{ErrorKind("other"), CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Category(), string(tt.kind))
	}
}

func TestContentItem_LengthCountsRunes(t *testing.T) {
	item := ContentItem{Text: "héllo"}
	assert.Equal(t, 5, item.Length())
	assert.Equal(t, "Untitled content", item.DisplayTitle())
}
