package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("property-comparator/raw-property-record"))

// String returns field as a string, or "" when it is absent, null, or not
// representable as text.
func (r RawPropertyRecord) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// Float returns field as a finite number. Booleans, blank strings, NaN,
// infinities, and unparseable values report false. Thousands separators in
// numeric strings are ignored.
func (r RawPropertyRecord) Float(field string) (float64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}

	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case bool:
		return 0, false
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		f, err = cast.ToFloat64E(s)
	case json.Number:
		f, err = t.Float64()
	default:
		f, err = cast.ToFloat64E(v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Identifier returns the record's "_id" or "id". Records without one get a
// UUIDv5 derived from their contents, so the same record always maps to the
// same identifier.
func (r RawPropertyRecord) Identifier() string {
	for _, field := range []string{"_id", "id"} {
		if id := strings.TrimSpace(r.String(field)); id != "" {
			return id
		}
	}
	return uuid.NewSHA1(recordNamespace, r.canonicalBytes()).String()
}

func (r RawPropertyRecord) canonicalBytes() []byte {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, r[k])
	}
	return []byte(b.String())
}
