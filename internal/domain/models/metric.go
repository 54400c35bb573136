// internal/domain/models/metric.go
package models

// Terminology: Metric Identifiers
//   - Key / key: The stable identifier of a metric; also its key in the Collection map
//   - Name / name: The human-readable label shown to the user and used as a CSV column header

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// DefaultColor is assigned to metrics that were stored without a color.
const DefaultColor = "#3b82f6"

// DateLayout is the calendar-date format of DataPoint.Date.
const DateLayout = "2006-01-02"

// TrackedValuesKey is the well-known key the collection is cached under.
const TrackedValuesKey = "trackedValues"

// SessionTokenKey is the cache key holding the signed sign-in token.
const SessionTokenKey = "stratatrack.session"

// Reserved reports whether key belongs to the daemon rather than to the
// user's other cached values. Reserved keys never travel with a backup.
func Reserved(key string) bool {
	return key == TrackedValuesKey || key == SessionTokenKey
}

// DataPoint is one dated observation of a metric.
// Value is either a float64 or a string.
type DataPoint struct {
	Date  string `bson:"date" json:"date"`
	Value any    `bson:"value" json:"value"`
}

// Metric is a named, colored, date-ordered series of data points.
type Metric struct {
	Key   string      `bson:"key,omitempty" json:"key,omitempty"`
	Name  string      `bson:"name,omitempty" json:"name,omitempty"`
	Color string      `bson:"color,omitempty" json:"color,omitempty"`
	Data  []DataPoint `bson:"data" json:"data"`
}

// Collection maps metric key to metric. It is the unit that is cached
// locally and synchronized to the remote document.
type Collection map[string]Metric

// Envelope is the remote document shape wrapping a collection.
type Envelope struct {
	TrackedValues Collection `bson:"trackedValues" json:"trackedValues"`
	UpdatedAt     string     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Clone returns a deep copy of the metric.
func (m Metric) Clone() Metric {
	out := m
	if m.Data != nil {
		out.Data = make([]DataPoint, len(m.Data))
		copy(out.Data, m.Data)
	} else {
		out.Data = []DataPoint{}
	}
	return out
}

// Clone returns a deep copy of the collection. A nil collection clones to
// an empty, non-nil one.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for k, m := range c {
		out[k] = m.Clone()
	}
	return out
}

// Keys returns the metric keys in ascending order.
func (c Collection) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize rewrites every data point value to its canonical Go type
// (float64 for numbers, string for text) so that collections decoded
// from BSON and from JSON compare equal.
func (c Collection) Normalize() {
	for k, m := range c {
		if m.Data == nil {
			m.Data = []DataPoint{}
		}
		for i := range m.Data {
			m.Data[i].Value = NormalizeValue(m.Data[i].Value)
		}
		c[k] = m
	}
}

// NormalizeValue converts integer and json.Number values to float64.
// Strings, float64 and nil are returned unchanged.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

// FormatValue renders a data point value the way it is shown in exports.
func FormatValue(v any) string {
	switch n := NormalizeValue(v).(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	default:
		b, err := json.Marshal(n)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// LessDate orders two calendar dates. Dates that do not parse fall back
// to lexical comparison, which agrees with chronological order for the
// YYYY-MM-DD layout.
func LessDate(a, b string) bool {
	ta, errA := time.Parse(DateLayout, a)
	tb, errB := time.Parse(DateLayout, b)
	if errA == nil && errB == nil {
		return ta.Before(tb)
	}
	return a < b
}

// ParseCollection decodes the JSON form stored in the local cache.
// Empty input yields an empty collection.
func ParseCollection(raw string) (Collection, error) {
	c := Collection{}
	if raw == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = Collection{}
	}
	c.Normalize()
	return c, nil
}

// Encode returns the JSON form stored in the local cache.
func (c Collection) Encode() (string, error) {
	if c == nil {
		c = Collection{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
