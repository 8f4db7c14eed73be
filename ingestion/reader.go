package ingestion

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/poiesic/cohorts/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Format identifies the encoding of a batch file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Column names with a dedicated meaning in batch files.
const (
	columnEmail     = "email"
	columnCookie    = "cookie"
	columnInterests = "interests"
	columnCreatedAt = "created_at"
)

// reservedColumns are derived or owned by the store and never read from a batch.
var reservedColumns = map[string]bool{
	"_id":        true,
	"id":         true,
	"cohort":     true,
	"cohorts":    true,
	"embeddings": true,
}

//go:embed record.schema.json
var recordSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// FormatFromPath derives the batch format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadRecords decodes a batch into records.
// Every record is validated; all rejected rows are reported together as
// core.RecordError values joined into one error, and no records are returned.
func ReadRecords(r io.Reader, format Format) ([]*core.Record, error) {
	var (
		rows []map[string]core.Value
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatJSON:
		rows, err = readJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	records := make([]*core.Record, 0, len(rows))
	var errs []error
	for i, row := range rows {
		record := recordFromRow(i+1, row)
		if err := core.ValidateRecord(record); err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

// recordFromRow splits the dedicated columns from the open-ended fields.
func recordFromRow(line int, row map[string]core.Value) *core.Record {
	record := &core.Record{
		Line:      line,
		Email:     strings.TrimSpace(row[columnEmail].Text()),
		Cookie:    strings.TrimSpace(row[columnCookie].Text()),
		Interests: row[columnInterests],
		CreatedAt: row[columnCreatedAt],
	}
	for k, v := range row {
		switch {
		case k == columnEmail, k == columnCookie, k == columnInterests, k == columnCreatedAt:
		case reservedColumns[k]:
		default:
			if record.Fields == nil {
				record.Fields = make(map[string]core.Value, len(row))
			}
			record.Fields[k] = v
		}
	}
	return record
}

func readCSV(r io.Reader) ([]map[string]core.Value, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", ErrMalformedBatch)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows []map[string]core.Value
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
		}
		row := make(map[string]core.Value, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			row[name] = cellValue(name, cell)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file has no data", ErrMalformedBatch)
	}
	return rows, nil
}

// cellValue types a CSV cell. Identity and interest columns always stay text
// so that numeric cookies keep their exact spelling.
func cellValue(column, cell string) core.Value {
	switch column {
	case columnEmail, columnCookie, columnInterests:
		if strings.TrimSpace(cell) == "" {
			return core.Null()
		}
		return core.String(strings.TrimSpace(cell))
	}
	return core.InferValue(cell)
}

func readJSON(r io.Reader) ([]map[string]core.Value, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	doc, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	var objects []any
	switch t := doc.(type) {
	case []any:
		objects = t
	case map[string]any:
		switch data := t["data"].(type) {
		case []any:
			objects = data
		default:
			objects = []any{data}
		}
	}

	rows := make([]map[string]core.Value, 0, len(objects))
	for _, obj := range objects {
		rows = append(rows, flatten(obj.(map[string]any)))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file has no data", ErrMalformedBatch)
	}
	return rows, nil
}

// flatten lifts the members of nested objects one level up and joins arrays.
// Interest arrays are joined with the interest separator so they split back
// into the same entries; other arrays are joined with ", ".
func flatten(obj map[string]any) map[string]core.Value {
	row := make(map[string]core.Value, len(obj))
	for k, v := range obj {
		if nested, ok := v.(map[string]any); ok {
			for sk, sv := range nested {
				row[sk] = jsonValue(sk, sv)
			}
			continue
		}
		row[k] = jsonValue(k, v)
	}
	return row
}

func jsonValue(key string, v any) core.Value {
	identity := key == columnCookie || key == columnEmail
	if n, ok := v.(json.Number); ok && identity {
		return core.String(n.String())
	}
	list, ok := v.([]any)
	if !ok {
		value := core.ValueOf(v)
		if identity && !value.IsNull() {
			return core.String(value.Text())
		}
		return value
	}
	sep := ", "
	if key == columnInterests {
		sep = core.InterestSeparator
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, core.ValueOf(item).Text())
	}
	return core.String(strings.Join(parts, sep))
}

func decodeJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("file is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("file contains trailing content")
	}
	return value, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compiledSchemaErr = compileSchema("record.schema.json", recordSchemaJSON)
	})
	return compiledSchema, compiledSchemaErr
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(name)
}
