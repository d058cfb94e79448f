package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldType field_type as declared by the schema service
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldDocument FieldType = "document"
	FieldPhoto    FieldType = "photo"
)

// ErrUnknownFieldType is returned by DecodeField for a field_type outside the known set.
var ErrUnknownFieldType = errors.New("unknown field type")

// DateToday in min_date/max_date resolves to the current date at render time.
const DateToday = "today"

// FieldBase attributes shared by every field kind
type FieldBase struct {
	Name         string          `json:"name"`
	Label        TranslatedText  `json:"label"`
	FieldType    FieldType       `json:"field_type"`
	Required     bool            `json:"required,omitempty"`
	Placeholder  *TranslatedText `json:"placeholder,omitempty"`
	AutoCopy     bool            `json:"auto_copy,omitempty"`
	DefaultValue json.RawMessage `json:"default_value,omitempty"`
}

// FieldVisitor must handle every field kind. Adding a kind to the schema model adds a method
// here, so every dispatch site stops compiling until it handles the new kind.
type FieldVisitor interface {
	VisitString(f *StringField)
	VisitNumber(f *NumberField)
	VisitDate(f *DateField)
	VisitSelect(f *SelectField)
	VisitDocument(f *DocumentField)
	VisitPhoto(f *PhotoField)
}

// Field is the closed set of field descriptors.
type Field interface {
	Base() *FieldBase
	Accept(v FieldVisitor)
	// IsFile reports document/photo kinds, whose values are stored file references.
	IsFile() bool
	sealed()
}

type StringField struct {
	FieldBase
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`
}

type NumberField struct {
	FieldBase
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Step     *float64 `json:"step,omitempty"`
}

type DateField struct {
	FieldBase
	MinDate string `json:"min_date,omitempty"`
	MaxDate string `json:"max_date,omitempty"`
}

type SelectOption struct {
	Value string         `json:"value"`
	Label TranslatedText `json:"label"`
}

type SelectField struct {
	FieldBase
	Options  []SelectOption `json:"options,omitempty"`
	Multiple bool           `json:"multiple,omitempty"`
}

// FileConstraints client-side checks applied before any upload
type FileConstraints struct {
	AcceptedFormats []string `json:"accepted_formats,omitempty"`
	MaxSizeMB       *float64 `json:"max_size_mb,omitempty"`
}

type DocumentField struct {
	FieldBase
	FileConstraints
}

type PhotoField struct {
	FieldBase
	FileConstraints
}

var (
	defaultDocumentFormats = []string{"pdf"}
	defaultPhotoFormats    = []string{"jpg", "jpeg", "png", "webp"}
)

func (f *StringField) Base() *FieldBase   { return &f.FieldBase }
func (f *NumberField) Base() *FieldBase   { return &f.FieldBase }
func (f *DateField) Base() *FieldBase     { return &f.FieldBase }
func (f *SelectField) Base() *FieldBase   { return &f.FieldBase }
func (f *DocumentField) Base() *FieldBase { return &f.FieldBase }
func (f *PhotoField) Base() *FieldBase    { return &f.FieldBase }

func (f *StringField) Accept(v FieldVisitor)   { v.VisitString(f) }
func (f *NumberField) Accept(v FieldVisitor)   { v.VisitNumber(f) }
func (f *DateField) Accept(v FieldVisitor)     { v.VisitDate(f) }
func (f *SelectField) Accept(v FieldVisitor)   { v.VisitSelect(f) }
func (f *DocumentField) Accept(v FieldVisitor) { v.VisitDocument(f) }
func (f *PhotoField) Accept(v FieldVisitor)    { v.VisitPhoto(f) }

func (f *StringField) IsFile() bool   { return false }
func (f *NumberField) IsFile() bool   { return false }
func (f *DateField) IsFile() bool     { return false }
func (f *SelectField) IsFile() bool   { return false }
func (f *DocumentField) IsFile() bool { return true }
func (f *PhotoField) IsFile() bool    { return true }

func (*StringField) sealed()   {}
func (*NumberField) sealed()   {}
func (*DateField) sealed()     {}
func (*SelectField) sealed()   {}
func (*DocumentField) sealed() {}
func (*PhotoField) sealed()    {}

// Formats returns the accepted extensions, lower-cased, falling back to the kind default.
func (f *DocumentField) Formats() []string { return f.formats(defaultDocumentFormats) }
func (f *PhotoField) Formats() []string    { return f.formats(defaultPhotoFormats) }

func (c FileConstraints) formats(def []string) []string {
	if len(c.AcceptedFormats) == 0 {
		return append([]string(nil), def...)
	}
	out := make([]string, 0, len(c.AcceptedFormats))
	for _, f := range c.AcceptedFormats {
		out = append(out, strings.ToLower(strings.TrimPrefix(f, ".")))
	}
	return out
}

// MaxBytes returns the size limit in bytes, 0 meaning unlimited.
func (c FileConstraints) MaxBytes() int64 {
	if c.MaxSizeMB == nil || *c.MaxSizeMB <= 0 {
		return 0
	}
	return int64(*c.MaxSizeMB * 1024 * 1024)
}

// DecodeField decodes one descriptor, dispatching on field_type.
func DecodeField(raw json.RawMessage) (Field, error) {
	var head struct {
		Name      string    `json:"name"`
		FieldType FieldType `json:"field_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode field: %w", err)
	}

	var f Field
	switch head.FieldType {
	case FieldString:
		f = &StringField{}
	case FieldNumber:
		f = &NumberField{}
	case FieldDate:
		f = &DateField{}
	case FieldSelect:
		f = &SelectField{}
	case FieldDocument:
		f = &DocumentField{}
	case FieldPhoto:
		f = &PhotoField{}
	default:
		return nil, fmt.Errorf("field %q: %w %q", head.Name, ErrUnknownFieldType, head.FieldType)
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("decode field %q: %w", head.Name, err)
	}
	return f, nil
}

// InitialValue returns the field's default value coerced to the field's type.
// ok is false when the descriptor carries no default_value.
func InitialValue(f Field) (v Value, ok bool) {
	raw := f.Base().DefaultValue
	if len(raw) == 0 || string(raw) == "null" {
		return Value{}, false
	}
	var dv Value
	if err := json.Unmarshal(raw, &dv); err != nil {
		return Value{}, false
	}
	if dv.IsNull() {
		return Value{}, false
	}
	if _, isNumber := f.(*NumberField); isNumber {
		return coerceNumber(dv), true
	}
	if f.IsFile() {
		if s, isStr := dv.Str(); isStr {
			return FileValue(s), true
		}
	}
	if sel, isSelect := f.(*SelectField); isSelect && sel.Multiple {
		if s, isStr := dv.Str(); isStr {
			if s == "" {
				return ListValue(nil), true
			}
			return ListValue([]string{s}), true
		}
	}
	return dv, true
}

func finite(n float64) bool { return !math.IsNaN(n) && !math.IsInf(n, 0) }

// coerceNumber turns a numeric default ("25" or 25) into a number; anything unparseable
// becomes the empty-string "unset" value.
func coerceNumber(v Value) Value {
	if n, ok := v.Num(); ok && finite(n) {
		return NumberValue(n)
	}
	if s, ok := v.Str(); ok {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && finite(n) {
			return NumberValue(n)
		}
	}
	if b, ok := v.Truth(); ok {
		if b {
			return NumberValue(1)
		}
		return NumberValue(0)
	}
	return StringValue("")
}
