package ingestion

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/poiesic/cohorts/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed embeddings.schema.json
var embeddingSchemaJSON string

var (
	embeddingSchemaOnce sync.Once
	embeddingSchema     *jsonschema.Schema
	embeddingSchemaErr  error
)

// Embedding is one user's vector from an embedding file.
type Embedding struct {
	Line   int
	Email  string
	Cookie string
	Vector []float32
}

// ReadEmbeddings decodes a JSON array of {"email", "cookie", "embeddings"}
// objects. Entries without an email or cookie are reported together as
// core.RecordError values and nothing is returned.
func ReadEmbeddings(r io.Reader) ([]*Embedding, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	doc, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	embeddingSchemaOnce.Do(func() {
		embeddingSchema, embeddingSchemaErr = compileSchema("embeddings.schema.json", embeddingSchemaJSON)
	})
	if embeddingSchemaErr != nil {
		return nil, embeddingSchemaErr
	}
	if err := embeddingSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	items := doc.([]any)
	out := make([]*Embedding, 0, len(items))
	var errs []error
	for i, item := range items {
		obj := item.(map[string]any)
		e := &Embedding{
			Line:   i + 1,
			Email:  strings.TrimSpace(jsonValue(columnEmail, obj[columnEmail]).Text()),
			Cookie: strings.TrimSpace(jsonValue(columnCookie, obj[columnCookie]).Text()),
		}
		if e.Email == "" && e.Cookie == "" {
			errs = append(errs, &core.RecordError{Line: e.Line, Err: core.ErrMissingIdentity})
			continue
		}
		vector, err := toVector(obj["embeddings"].([]any))
		if err != nil {
			errs = append(errs, &core.RecordError{Line: e.Line, Field: "embeddings", Err: err})
			continue
		}
		e.Vector = vector
		out = append(out, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func toVector(items []any) ([]float32, error) {
	vector := make([]float32, len(items))
	for i, item := range items {
		f, err := item.(json.Number).Float64()
		if err != nil {
			return nil, err
		}
		vector[i] = float32(f)
	}
	return vector, nil
}
