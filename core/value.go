package core

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the type held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Value is a scalar attribute of a record or profile.
// The zero Value is null.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Time returns a timestamp value normalized to UTC.
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t.UTC()} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Text returns the value rendered as text, or "" for null.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	}
	return ""
}

// Any returns the value as a plain Go value suitable for JSON encoding.
func (v Value) Any() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	}
	return nil
}

// Equal reports whether two values hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindTime:
		return v.Time.Equal(o.Time)
	}
	return true
}

// InferValue types a raw text cell the way tabular readers do:
// blank is null, then finite number, then boolean, otherwise string.
// Words such as NaN or Inf stay strings.
func InferValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null()
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return Number(n)
	}
	switch strings.ToLower(s) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return String(raw)
}

// ValueOf converts a decoded JSON scalar into a Value.
// Unsupported types are rendered as strings.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		return Bool(t)
	case time.Time:
		return Time(t)
	case interface{ String() string }:
		// json.Number
		if n, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return Number(n)
		}
		return String(t.String())
	}
	return Null()
}

// timestampLayouts are the formats accepted for created_at values.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseTimestamp coerces a value into a canonical UTC timestamp.
// Numbers are treated as Unix seconds. Null yields the zero time and ok=false.
func ParseTimestamp(v Value) (time.Time, bool) {
	switch v.Kind {
	case KindTime:
		return v.Time.UTC(), true
	case KindNumber:
		return time.Unix(int64(v.Num), 0).UTC(), true
	case KindString:
		s := strings.TrimSpace(v.Str)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
