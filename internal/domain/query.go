package domain

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultResultCount is used when a caller does not ask for a specific count.
const DefaultResultCount = 5

// SelectionAuto asks the dispatcher to walk the fallback chain.
const SelectionAuto = "auto"

// Query is one search request. Build it with NewQuery.
type Query struct {
	Text    string
	Mode    Mode
	Count   int
	Content bool
}

// NewQuery validates its inputs and returns an immutable Query.
// A zero count means DefaultResultCount. Mode is matched case-insensitively
// and the empty mode means ModeDefault.
func NewQuery(text string, mode Mode, count int, content bool) (Query, error) {
	if m, err := ParseMode(string(mode)); err == nil {
		mode = m
	}
	if count == 0 {
		count = DefaultResultCount
	}
	q := Query{
		Text:    strings.TrimSpace(text),
		Mode:    mode,
		Count:   count,
		Content: content,
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate checks the query invariants.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return NewDomainError("Query.Validate", ErrInvalidInput, "query text must not be empty")
	}
	if q.Count <= 0 {
		return NewDomainError("Query.Validate", ErrInvalidInput,
			fmt.Sprintf("result count must be positive, got %d", q.Count))
	}
	if !slices.Contains(KnownModes, q.Mode) {
		return NewDomainError("Query.Validate", ErrInvalidInput,
			fmt.Sprintf("unsupported mode %q", q.Mode))
	}
	return nil
}
