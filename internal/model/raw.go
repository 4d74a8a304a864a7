package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawRecord is an untrusted source record. Every field is optional and
// malformed values decode as absent rather than failing the record.
type RawRecord struct {
	Name           Text       `json:"name,omitzero"`
	Description    Text       `json:"description,omitzero"`
	Category       Text       `json:"category,omitzero"`
	Fabric         Text       `json:"fabric,omitzero"`
	Occasion       Text       `json:"occasion,omitzero"`
	Price          Number     `json:"price,omitzero"`
	OriginalPrice  Number     `json:"originalPrice,omitzero"`
	Images         StringList `json:"images,omitzero"`
	Image          Text       `json:"image,omitzero"`
	InStock        Number     `json:"inStock,omitzero"`
	Rating         Number     `json:"rating,omitzero"`
	Reviews        Number     `json:"reviews,omitzero"`
	Colors         StringList `json:"colors,omitzero"`
	Color          Text       `json:"color,omitzero"`
	Length         Number     `json:"length,omitzero"`
	Size           Number     `json:"size,omitzero"`
	Weight         Number     `json:"weight,omitzero"`
	SKU            Text       `json:"sku,omitzero"`
	BlouseIncluded Flag       `json:"blouseIncluded,omitzero"`
	Featured       Flag       `json:"featured,omitzero"`
}

// Number accepts a JSON number or a numeric string such as "1,200".
type Number struct {
	Value float64
	Valid bool
}

func Num(v float64) Number { return Number{Value: v, Valid: true} }

func (n Number) IsZero() bool { return !n.Valid }

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		*n = Num(t)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		s = strings.TrimLeft(s, "₹$ ")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*n = Num(f)
		}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Text accepts a string or a number.
type Text struct {
	Value string
	Valid bool
}

func Str(s string) Text { return Text{Value: s, Valid: true} }

func (t Text) IsZero() bool { return !t.Valid }

// String returns the trimmed value, empty when absent.
func (t Text) String() string {
	if !t.Valid {
		return ""
	}
	return strings.TrimSpace(t.Value)
}

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = Text{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		*t = Str(x)
	case float64:
		*t = Str(strconv.FormatFloat(x, 'f', -1, 64))
	}
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

// Flag accepts booleans, 0/1 and the strings true/false, yes/no.
type Flag struct {
	Value bool
	Valid bool
}

func Bool(v bool) Flag { return Flag{Value: v, Valid: true} }

func (f Flag) IsZero() bool { return !f.Valid }

// Or returns the flag value, or def when absent.
func (f Flag) Or(def bool) bool {
	if !f.Valid {
		return def
	}
	return f.Value
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	*f = Flag{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case bool:
		*f = Bool(x)
	case float64:
		if x == 0 || x == 1 {
			*f = Bool(x == 1)
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			*f = Bool(true)
		case "false", "no", "n", "0":
			*f = Bool(false)
		}
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// StringList accepts an array of strings or a single string. Non-string
// array elements are dropped.
type StringList struct {
	Values []string
	Valid  bool
}

func List(vs ...string) StringList { return StringList{Values: vs, Valid: true} }

func (l StringList) IsZero() bool { return !l.Valid }

func (l *StringList) UnmarshalJSON(b []byte) error {
	*l = StringList{}
	b = bytes.TrimSpace(b)
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		*l = List(x)
	case []any:
		vals := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				vals = append(vals, s)
			}
		}
		*l = List(vals...)
	}
	return nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("null"), nil
	}
	if l.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Values)
}
