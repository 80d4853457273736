package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuery(t *testing.T) {
	q, err := NewQuery("  golang generics  ", ModeCurrent, 10, true)
	require.NoError(t, err)
	assert.Equal(t, "golang generics", q.Text)
	assert.Equal(t, ModeCurrent, q.Mode)
	assert.Equal(t, 10, q.Count)
	assert.True(t, q.Content)
}

func TestNewQueryDefaults(t *testing.T) {
	q, err := NewQuery("weather", "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, ModeDefault, q.Mode)
	assert.Equal(t, DefaultResultCount, q.Count)
}

func TestNewQueryRejects(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		mode  Mode
		count int
	}{
		{"empty text", "", ModeDefault, 5},
		{"whitespace text", " \t\n", ModeDefault, 5},
		{"negative count", "q", ModeDefault, -1},
		{"bad mode", "q", Mode("yesterday"), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQuery(tt.text, tt.mode, tt.count, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNewQueryNormalisesMode(t *testing.T) {
	q, err := NewQuery("q", Mode(" CURRENT "), 1, false)
	require.NoError(t, err)
	assert.Equal(t, ModeCurrent, q.Mode)

	err = Query{Text: "q", Mode: Mode("CURRENT"), Count: 1}.Validate()
	assert.ErrorIs(t, err, ErrInvalidInput, "hand-built queries must use a canonical mode")
}

func TestQueryValidateZeroValue(t *testing.T) {
	err := Query{}.Validate()
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = Query{Text: "x", Count: 1}.Validate()
	assert.ErrorIs(t, err, ErrInvalidInput, "empty mode on a hand-built query is invalid")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDefault, m)

	m, err = ParseMode(" Current ")
	require.NoError(t, err)
	assert.Equal(t, ModeCurrent, m)

	_, err = ParseMode("live")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseParam(t *testing.T) {
	p, err := ParseParam("COUNT")
	require.NoError(t, err)
	assert.Equal(t, ParamCount, p)

	_, err = ParseParam("language")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
