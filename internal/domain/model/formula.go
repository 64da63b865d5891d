package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Weight is one labelled weight of a WeightTable.
type Weight struct {
	Label string
	Value float64
}

// WeightTable is an ordered label to weight mapping. It is encoded as a JSON
// object and keeps the key order of the document it was decoded from, so
// first-match lookups are deterministic.
type WeightTable []Weight

// Lookup returns the weight of the first entry whose label equals label.
func (t WeightTable) Lookup(label string) (float64, bool) {
	for _, w := range t {
		if w.Label == label {
			return w.Value, true
		}
	}
	return 0, false
}

// MarshalJSON encodes the table as a JSON object in table order.
func (t WeightTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, w := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(w.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(w.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the table. Entries whose value is
// not a number are dropped.
func (t *WeightTable) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("weight table: expected object, got %v", tok)
	}
	out := WeightTable{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("weight table: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out = append(out, Weight{Label: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}

// TypeWeights scores the book type. Default applies to types missing from Weights.
type TypeWeights struct {
	Weights WeightTable `json:"weights"`
	Default *float64    `json:"default,omitempty"`
}

// AvailabilityWeights scores availability. Only the privileged availability
// label (e.g. a physical copy) is scored by Privileged; every other value
// takes Default.
type AvailabilityWeights struct {
	Privileged *float64 `json:"privileged,omitempty"`
	Default    *float64 `json:"default,omitempty"`
}

// YearRange matches publication years. A nil bound is open.
type YearRange struct {
	Min    *int    `json:"min,omitempty"`
	Max    *int    `json:"max,omitempty"`
	Weight float64 `json:"weight"`
}

// Contains reports whether year falls inside the range. A range without
// bounds matches nothing.
func (r YearRange) Contains(year int) bool {
	switch {
	case r.Min != nil && r.Max != nil:
		return *r.Min <= year && year <= *r.Max
	case r.Max != nil:
		return year <= *r.Max
	case r.Min != nil:
		return year >= *r.Min
	}
	return false
}

// YearWeights is an ordered list of year ranges; the first match wins.
type YearWeights struct {
	Ranges []YearRange `json:"ranges"`
}

// FormulaConfig is a user's custom weighting. Each nil dimension falls back
// to the built-in defaults. A non-nil but empty Category table is honoured
// as given and matches nothing.
type FormulaConfig struct {
	Type         *TypeWeights         `json:"type,omitempty"`
	Availability *AvailabilityWeights `json:"availability,omitempty"`
	Priority     *WeightTable         `json:"priority,omitempty"`
	Year         *YearWeights         `json:"year,omitempty"`
	Class        *WeightTable         `json:"book_class,omitempty"`
	Category     *WeightTable         `json:"category,omitempty"`
}
