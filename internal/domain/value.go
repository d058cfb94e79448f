package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates Value
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	// KindFile is a stored file reference (URL) returned by the upload endpoint
	KindFile
	// KindRaw keeps nested objects (e.g. passport_data) that the engine never edits
	KindRaw
)

// Value is one beneficiary field value: null | string | number | bool | string list | file reference.
type Value struct {
	kind  ValueKind
	str   string
	num   float64
	truth bool
	items []string
	raw   json.RawMessage
}

func NullValue() Value            { return Value{kind: KindNull} }
func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, truth: b} }
func FileValue(url string) Value  { return Value{kind: KindFile, str: url} }

func ListValue(items []string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// IsEmpty reports whether the value counts as "not filled in":
// null, the empty string or an empty list.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindFile:
		return v.str == ""
	case KindList:
		return len(v.items) == 0
	case KindRaw:
		return len(v.raw) == 0 || string(v.raw) == "null"
	}
	return false
}

// Str returns the string payload of string and file values.
func (v Value) Str() (string, bool) {
	if v.kind == KindString || v.kind == KindFile {
		return v.str, true
	}
	return "", false
}

func (v Value) Num() (float64, bool) {
	if v.kind == KindNumber {
		return v.num, true
	}
	return 0, false
}

func (v Value) Truth() (bool, bool) {
	if v.kind == KindBool {
		return v.truth, true
	}
	return false, false
}

func (v Value) Items() []string {
	if v.kind != KindList {
		return nil
	}
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// Display renders the value as the text a widget shows.
func (v Value) Display() string {
	switch v.kind {
	case KindString, KindFile:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.truth)
	case KindList:
		b, _ := json.Marshal(v.items)
		return string(b)
	case KindRaw:
		return string(v.raw)
	}
	return ""
}

// Equal compares kind and payload. String and file values with the same text are equal.
func (v Value) Equal(o Value) bool {
	vk, ok := v.kind, o.kind
	if vk == KindFile {
		vk = KindString
	}
	if ok == KindFile {
		ok = KindString
	}
	if vk != ok {
		return false
	}
	switch vk {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.truth == o.truth
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if v.items[i] != o.items[i] {
				return false
			}
		}
		return true
	case KindRaw:
		return bytes.Equal(v.raw, o.raw)
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString, KindFile:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.truth)
	case KindList:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	case KindRaw:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = NullValue()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			*v = Value{kind: KindRaw, raw: append(json.RawMessage(nil), data...)}
			return nil
		}
		*v = ListValue(items)
	case '{':
		*v = Value{kind: KindRaw, raw: append(json.RawMessage(nil), data...)}
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
		*v = NumberValue(f)
	}
	return nil
}
