package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UnsupportedField a descriptor whose field_type this build does not know
type UnsupportedField struct {
	Name      string    `json:"name"`
	FieldType FieldType `json:"field_type"`
}

// Schema form schema for one country + language
type Schema struct {
	CountryID        string             `json:"country_id"`
	CountryName      TranslatedText     `json:"country_name"`
	Fields           []Field            `json:"fields"`
	SubmitButtonText TranslatedText     `json:"submit_button_text"`
	Unsupported      []UnsupportedField `json:"unsupported_fields,omitempty"`
}

type schemaWire struct {
	CountryID        string             `json:"country_id"`
	CountryName      TranslatedText     `json:"country_name"`
	Fields           []json.RawMessage  `json:"fields"`
	SubmitButtonText TranslatedText     `json:"submit_button_text"`
	Unsupported      []UnsupportedField `json:"unsupported_fields,omitempty"`
}

// UnmarshalJSON decodes the field list into concrete kinds. Unknown kinds are kept in
// Unsupported rather than failing the whole schema; callers log them.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var w schemaWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Schema{
		CountryID:        w.CountryID,
		CountryName:      w.CountryName,
		SubmitButtonText: w.SubmitButtonText,
		Fields:           make([]Field, 0, len(w.Fields)),
		Unsupported:      w.Unsupported,
	}
	seen := map[string]bool{}
	for _, raw := range w.Fields {
		f, err := DecodeField(raw)
		if err != nil {
			if errors.Is(err, ErrUnknownFieldType) {
				var head UnsupportedField
				_ = json.Unmarshal(raw, &head)
				out.Unsupported = append(out.Unsupported, head)
				continue
			}
			return err
		}
		name := f.Base().Name
		if name == "" {
			return fmt.Errorf("decode schema: field without name")
		}
		if seen[name] {
			return fmt.Errorf("decode schema: duplicate field %q", name)
		}
		seen[name] = true
		out.Fields = append(out.Fields, f)
	}
	*s = out
	return nil
}

// Field looks a descriptor up by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Base().Name == name {
			return f, true
		}
	}
	return nil, false
}

// AutoCopyDefaults names of fields flagged auto_copy by the schema
func (s *Schema) AutoCopyDefaults() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Base().AutoCopy {
			out = append(out, f.Base().Name)
		}
	}
	return out
}

// InitializeRecord builds a new beneficiary record: every field with a default_value holds it
// (numbers coerced), fields without one are absent.
func InitializeRecord(fields []Field) Record {
	rec := Record{}
	for _, f := range fields {
		if v, ok := InitialValue(f); ok {
			rec[f.Base().Name] = v
		}
	}
	return rec
}
