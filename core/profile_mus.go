package core

import (
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for stored types. They follow the mus.Serializer contract:
// Marshal writes into a buffer of at least Size bytes and returns the bytes written;
// Unmarshal returns the value, the bytes consumed and an error for truncated input.
var (
	IDMUS        = idMUS{}
	ValueMUS     = valueMUS{}
	ProfileMUS   = profileMUS{}
	RunRecordMUS = runRecordMUS{}
)

// nilLength marks an absent (nil) list, distinct from an empty one.
const nilLength int64 = -1

// ID

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Value

type valueMUS struct{}

func (valueMUS) Marshal(v Value, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Kind), bs)
	switch v.Kind {
	case KindString:
		n += ord.String.Marshal(v.Str, bs[n:])
	case KindNumber:
		n += raw.Float64.Marshal(v.Num, bs[n:])
	case KindBool:
		n += ord.Bool.Marshal(v.Bool, bs[n:])
	case KindTime:
		n += marshalTime(v.Time, bs[n:])
	}
	return n
}

func (valueMUS) Unmarshal(bs []byte) (v Value, n int, err error) {
	kind, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Kind = ValueKind(kind)
	var n1 int
	switch v.Kind {
	case KindString:
		v.Str, n1, err = ord.String.Unmarshal(bs[n:])
	case KindNumber:
		v.Num, n1, err = raw.Float64.Unmarshal(bs[n:])
	case KindBool:
		v.Bool, n1, err = ord.Bool.Unmarshal(bs[n:])
	case KindTime:
		v.Time, n1, err = unmarshalTime(bs[n:])
	}
	n += n1
	return
}

func (valueMUS) Size(v Value) (size int) {
	size = varint.Uint64.Size(uint64(v.Kind))
	switch v.Kind {
	case KindString:
		size += ord.String.Size(v.Str)
	case KindNumber:
		size += raw.Float64.Size(v.Num)
	case KindBool:
		size += ord.Bool.Size(v.Bool)
	case KindTime:
		size += sizeTime(v.Time)
	}
	return
}

func (s valueMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Profile

type profileMUS struct{}

func (profileMUS) Marshal(v Profile, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Email, bs[n:])
	n += ord.String.Marshal(v.Cookie, bs[n:])
	n += marshalStrings(v.Interests, bs[n:])
	n += marshalCohorts(v.Cohorts, bs[n:])
	n += marshalVector(v.Embeddings, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	n += marshalFields(v.Fields, bs[n:])
	return n
}

func (profileMUS) Unmarshal(bs []byte) (v Profile, n int, err error) {
	var n1 int
	if v.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.Email, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Cookie, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Interests, n1, err = unmarshalStrings(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Cohorts, n1, err = unmarshalCohorts(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Embeddings, n1, err = unmarshalVector(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.CreatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.InsertedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.UpdatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Fields, n1, err = unmarshalFields(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (profileMUS) Size(v Profile) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Email)
	size += ord.String.Size(v.Cookie)
	size += sizeStrings(v.Interests)
	size += sizeCohorts(v.Cohorts)
	size += sizeVector(v.Embeddings)
	size += sizeTime(v.CreatedAt)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	size += sizeFields(v.Fields)
	return
}

func (s profileMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// RunRecord

type runRecordMUS struct{}

func (runRecordMUS) Marshal(v RunRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.Source, bs)
	n += ord.String.Marshal(v.RunID, bs[n:])
	n += varint.Int64.Marshal(int64(v.Received), bs[n:])
	n += varint.Int64.Marshal(int64(v.Suppressed), bs[n:])
	n += varint.Int64.Marshal(int64(v.Inserted), bs[n:])
	n += varint.Int64.Marshal(int64(v.Updated), bs[n:])
	n += varint.Int64.Marshal(int64(v.Failed), bs[n:])
	n += marshalTime(v.FinishedAt, bs[n:])
	return n
}

func (runRecordMUS) Unmarshal(bs []byte) (v RunRecord, n int, err error) {
	var n1 int
	if v.Source, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.RunID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	counts := []*int{&v.Received, &v.Suppressed, &v.Inserted, &v.Updated, &v.Failed}
	for _, c := range counts {
		var i int64
		if i, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
			return
		}
		*c = int(i)
		n += n1
	}
	if v.FinishedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (runRecordMUS) Size(v RunRecord) (size int) {
	size = ord.String.Size(v.Source)
	size += ord.String.Size(v.RunID)
	for _, c := range []int{v.Received, v.Suppressed, v.Inserted, v.Updated, v.Failed} {
		size += varint.Int64.Size(int64(c))
	}
	size += sizeTime(v.FinishedAt)
	return
}

func (s runRecordMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Helpers. Timestamps are stored as Unix microseconds behind a presence flag.

func marshalTime(t time.Time, bs []byte) (n int) {
	if t.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n = ord.Bool.Marshal(true, bs)
	n += varint.Int64.Marshal(t.UnixMicro(), bs[n:])
	return n
}

func unmarshalTime(bs []byte) (t time.Time, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	t = time.UnixMicro(micros).UTC()
	return
}

func sizeTime(t time.Time) int {
	if t.IsZero() {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + varint.Int64.Size(t.UnixMicro())
}

func listLength[T any](l []T) int64 {
	if l == nil {
		return nilLength
	}
	return int64(len(l))
}

func marshalStrings(l []string, bs []byte) (n int) {
	n = varint.Int64.Marshal(listLength(l), bs)
	for _, s := range l {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func unmarshalStrings(bs []byte) (l []string, n int, err error) {
	length, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || length == nilLength {
		return
	}
	l = make([]string, 0, length)
	for i := int64(0); i < length; i++ {
		s, n1, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += n1
		l = append(l, s)
	}
	return
}

func sizeStrings(l []string) (size int) {
	size = varint.Int64.Size(listLength(l))
	for _, s := range l {
		size += ord.String.Size(s)
	}
	return
}

func marshalCohorts(l []Cohort, bs []byte) (n int) {
	n = varint.Int64.Marshal(listLength(l), bs)
	for _, c := range l {
		n += ord.String.Marshal(string(c), bs[n:])
	}
	return n
}

func unmarshalCohorts(bs []byte) (l []Cohort, n int, err error) {
	strs, n, err := unmarshalStrings(bs)
	if err != nil || strs == nil {
		return nil, n, err
	}
	l = make([]Cohort, len(strs))
	for i, s := range strs {
		l[i] = Cohort(s)
	}
	return
}

func sizeCohorts(l []Cohort) (size int) {
	size = varint.Int64.Size(listLength(l))
	for _, c := range l {
		size += ord.String.Size(string(c))
	}
	return
}

func marshalVector(l []float32, bs []byte) (n int) {
	n = varint.Int64.Marshal(listLength(l), bs)
	for _, f := range l {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (l []float32, n int, err error) {
	length, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || length == nilLength {
		return
	}
	l = make([]float32, 0, length)
	for i := int64(0); i < length; i++ {
		f, n1, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += n1
		l = append(l, f)
	}
	return
}

func sizeVector(l []float32) (size int) {
	size = varint.Int64.Size(listLength(l))
	for _, f := range l {
		size += raw.Float32.Size(f)
	}
	return
}

// Fields are written in key order so equal maps encode identically.
func marshalFields(m map[string]Value, bs []byte) (n int) {
	n = varint.Int64.Marshal(int64(len(m)), bs)
	for _, k := range sortedKeys(m) {
		n += ord.String.Marshal(k, bs[n:])
		n += ValueMUS.Marshal(m[k], bs[n:])
	}
	return n
}

func unmarshalFields(bs []byte) (m map[string]Value, n int, err error) {
	length, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || length <= 0 {
		return
	}
	m = make(map[string]Value, length)
	for i := int64(0); i < length; i++ {
		k, n1, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += n1
		v, n2, err := ValueMUS.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += n2
		m[k] = v
	}
	return
}

func sizeFields(m map[string]Value) (size int) {
	size = varint.Int64.Size(int64(len(m)))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ValueMUS.Size(v)
	}
	return
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
