// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// PARAM VALUE UNION
// =============================================================================

// ParamKind identifies the variant held by a ParamValue.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamList
	ParamMap
)

// String returns the kind name.
func (k ParamKind) String() string {
	switch k {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamList:
		return "list"
	case ParamMap:
		return "map"
	default:
		return "unknown"
	}
}

// ErrParamKind is returned when a ParamValue accessor is called for the
// wrong variant.
var ErrParamKind = errors.New("param value kind mismatch")

// ParamValue is a tagged union for model-specific generation parameters.
//
// The backend describes these parameters with heterogeneous JSON values
// (string, number, bool, arrays, nested objects). ParamValue keeps the
// variant explicit instead of passing untyped values around.
type ParamValue struct {
	kind ParamKind

	str   string
	i     int64
	num   float64
	b     bool
	items []ParamValue
	entry map[string]ParamValue
}

// Constructors for each variant.

func StringParam(v string) ParamValue  { return ParamValue{kind: ParamString, str: v} }
func IntParam(v int64) ParamValue      { return ParamValue{kind: ParamInt, i: v} }
func FloatParam(v float64) ParamValue  { return ParamValue{kind: ParamFloat, num: v} }
func BoolParam(v bool) ParamValue      { return ParamValue{kind: ParamBool, b: v} }
func ListParam(v []ParamValue) ParamValue {
	return ParamValue{kind: ParamList, items: v}
}
func MapParam(v map[string]ParamValue) ParamValue {
	return ParamValue{kind: ParamMap, entry: v}
}

// Kind returns the variant tag.
func (p ParamValue) Kind() ParamKind {
	return p.kind
}

// Accessors return the variant value and report whether the kind matched.

func (p ParamValue) Str() (string, bool)   { return p.str, p.kind == ParamString }
func (p ParamValue) Int() (int64, bool)    { return p.i, p.kind == ParamInt }
func (p ParamValue) Float() (float64, bool) { return p.num, p.kind == ParamFloat }
func (p ParamValue) Bool() (bool, bool)    { return p.b, p.kind == ParamBool }
func (p ParamValue) List() ([]ParamValue, bool) {
	return p.items, p.kind == ParamList
}
func (p ParamValue) Map() (map[string]ParamValue, bool) {
	return p.entry, p.kind == ParamMap
}

// =============================================================================
// JSON SERIALIZATION
// =============================================================================

// MarshalJSON encodes the variant as its natural JSON value.
func (p ParamValue) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case ParamString:
		return json.Marshal(p.str)
	case ParamInt:
		return json.Marshal(p.i)
	case ParamFloat:
		return json.Marshal(p.num)
	case ParamBool:
		return json.Marshal(p.b)
	case ParamList:
		if p.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(p.items)
	case ParamMap:
		if p.entry == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(p.entry)
	default:
		return nil, fmt.Errorf("cannot marshal param kind %d", p.kind)
	}
}

// UnmarshalJSON decodes a JSON value into the matching variant.
// Whole numbers decode as ParamInt, fractional numbers as ParamFloat.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	v, err := paramFromInterface(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// paramFromInterface converts a decoded JSON value into a ParamValue.
func paramFromInterface(raw interface{}) (ParamValue, error) {
	switch v := raw.(type) {
	case string:
		return StringParam(v), nil
	case bool:
		return BoolParam(v), nil
	case json.Number:
		// Integer literals go through Int64 so values beyond float64's
		// 53-bit mantissa survive intact.
		if !hasDecimalPoint(v.String()) {
			if i, err := v.Int64(); err == nil {
				return IntParam(i), nil
			}
		}
		f, err := v.Float64()
		if err != nil {
			return ParamValue{}, err
		}
		return FloatParam(f), nil
	case []interface{}:
		items := make([]ParamValue, 0, len(v))
		for _, item := range v {
			pv, err := paramFromInterface(item)
			if err != nil {
				return ParamValue{}, err
			}
			items = append(items, pv)
		}
		return ListParam(items), nil
	case map[string]interface{}:
		entry := make(map[string]ParamValue, len(v))
		for key, item := range v {
			pv, err := paramFromInterface(item)
			if err != nil {
				return ParamValue{}, err
			}
			entry[key] = pv
		}
		return MapParam(entry), nil
	case nil:
		// JSON null has no dedicated variant; treat as empty string.
		return StringParam(""), nil
	default:
		return ParamValue{}, fmt.Errorf("unsupported param value type %T", raw)
	}
}

// hasDecimalPoint reports whether the literal was written with a fraction
// or exponent, so "1.0" stays a float even though it is a whole number.
func hasDecimalPoint(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == 'e' || s[i] == 'E' {
			return true
		}
	}
	return false
}
