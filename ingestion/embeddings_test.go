package ingestion

import (
	"strings"
	"testing"

	"github.com/poiesic/cohorts/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEmbeddings(t *testing.T) {
	input := `[
		{"email": " a@example.com ", "embeddings": [0.5, -1, 2]},
		{"cookie": 12345678901234567891, "embeddings": [1]},
		{"email": null, "cookie": "c3", "embeddings": [0, 0]}
	]`

	embeddings, err := ReadEmbeddings(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, embeddings, 3)

	assert.Equal(t, "a@example.com", embeddings[0].Email)
	assert.Equal(t, []float32{0.5, -1, 2}, embeddings[0].Vector)
	assert.Equal(t, "12345678901234567891", embeddings[1].Cookie)
	assert.Equal(t, 3, embeddings[2].Line)
	assert.Empty(t, embeddings[2].Email)
	assert.Equal(t, "c3", embeddings[2].Cookie)
}

func TestReadEmbeddings_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "object", input: `{"email": "a@example.com", "embeddings": [1]}`},
		{name: "no rows", input: `[]`},
		{name: "no vector", input: `[{"email": "a@example.com"}]`},
		{name: "empty vector", input: `[{"email": "a@example.com", "embeddings": []}]`},
		{name: "text in vector", input: `[{"email": "a@example.com", "embeddings": ["x"]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEmbeddings(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformedBatch)
		})
	}
}

func TestReadEmbeddings_MissingIdentity(t *testing.T) {
	input := `[{"email": "a@example.com", "embeddings": [1]}, {"email": "  ", "embeddings": [1]}]`

	embeddings, err := ReadEmbeddings(strings.NewReader(input))
	assert.Nil(t, embeddings)
	require.ErrorIs(t, err, core.ErrMissingIdentity)
	assert.ErrorContains(t, err, "line 2")
}
