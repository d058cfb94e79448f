package domain

// Record one beneficiary's data: field name -> value
type Record map[string]Value

// PassportDataKey is attached to records by the OCR step; it is never sent for validation.
const PassportDataKey = "passport_data"

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// With returns a copy of r with name set to v; r itself is not modified.
func (r Record) With(name string, v Value) Record {
	out := r.Clone()
	out[name] = v
	return out
}

// Without returns a copy of r without the given keys.
func (r Record) Without(keys ...string) Record {
	out := r.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Get returns the value and whether the key is present.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r[name]
	return v, ok
}

// Filled reports whether name is present and non-empty.
func (r Record) Filled(name string) bool {
	v, ok := r[name]
	return ok && !v.IsEmpty()
}

// CloneRecords deep-copies a record list.
func CloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
