package apm

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LabelKind discriminates the value held by a LabelValue.
type LabelKind int

const (
	LabelKindString LabelKind = iota
	LabelKindInt
	LabelKindFloat64
	LabelKindBool
)

// LabelValue is a typed scalar attached to a transaction or span. Only
// strings, integers, floats and booleans are representable; anything richer
// belongs in application logs, not trace labels.
type LabelValue struct {
	kind LabelKind
	str  string
	num  float64
	b    bool
}

// Label is a key/value pair accepted by AddLabels.
type Label struct {
	Key   string
	Value LabelValue
}

// String builds a string label.
func String(key, value string) Label {
	return Label{Key: key, Value: LabelValue{kind: LabelKindString, str: value}}
}

// Int builds an integer label.
func Int(key string, value int) Label {
	return Label{Key: key, Value: LabelValue{kind: LabelKindInt, num: float64(value)}}
}

// Int64 builds an integer label from an int64.
func Int64(key string, value int64) Label {
	return Label{Key: key, Value: LabelValue{kind: LabelKindInt, num: float64(value)}}
}

// Float64 builds a floating point label.
func Float64(key string, value float64) Label {
	return Label{Key: key, Value: LabelValue{kind: LabelKindFloat64, num: value}}
}

// Bool builds a boolean label.
func Bool(key string, value bool) Label {
	return Label{Key: key, Value: LabelValue{kind: LabelKindBool, b: value}}
}

// Kind reports which scalar type the value holds.
func (v LabelValue) Kind() LabelKind { return v.kind }

// StringValue returns the held string, or "" for non-string values.
func (v LabelValue) StringValue() string { return v.str }

// IntValue returns the held integer, or 0 for non-integer values.
func (v LabelValue) IntValue() int64 {
	if v.kind != LabelKindInt {
		return 0
	}
	return int64(v.num)
}

// Float64Value returns the held float, or 0 for non-float values.
func (v LabelValue) Float64Value() float64 {
	if v.kind != LabelKindFloat64 {
		return 0
	}
	return v.num
}

// BoolValue returns the held bool, or false for non-bool values.
func (v LabelValue) BoolValue() bool { return v.b }

// Interface returns the held value as an untyped interface, mainly for
// logging and test assertions.
func (v LabelValue) Interface() any {
	switch v.kind {
	case LabelKindInt:
		return int64(v.num)
	case LabelKindFloat64:
		return v.num
	case LabelKindBool:
		return v.b
	default:
		return v.str
	}
}

func (v LabelValue) String() string {
	switch v.kind {
	case LabelKindInt:
		return strconv.FormatInt(int64(v.num), 10)
	case LabelKindFloat64:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case LabelKindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// MarshalJSON encodes the scalar directly, without a kind wrapper.
func (v LabelValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts any JSON scalar. Numbers with no fractional part
// decode as integer labels.
func (v *LabelValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case string:
		*v = LabelValue{kind: LabelKindString, str: val}
	case bool:
		*v = LabelValue{kind: LabelKindBool, b: val}
	case float64:
		if val == float64(int64(val)) {
			*v = LabelValue{kind: LabelKindInt, num: val}
		} else {
			*v = LabelValue{kind: LabelKindFloat64, num: val}
		}
	default:
		return fmt.Errorf("apm: label value must be a scalar, got %T", raw)
	}
	return nil
}

// labelMap merges labels last-write-wins into dst, allocating it on demand.
func labelMap(dst map[string]LabelValue, labels []Label) map[string]LabelValue {
	if len(labels) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]LabelValue, len(labels))
	}
	for _, l := range labels {
		if l.Key == "" {
			continue
		}
		dst[l.Key] = l.Value
	}
	return dst
}

func copyLabels(src map[string]LabelValue) map[string]LabelValue {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]LabelValue, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
