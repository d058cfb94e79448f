package domain

// ValidationError one field-level error returned by the validator
type ValidationError struct {
	Message TranslatedText `json:"message"`
	Code    string         `json:"code,omitempty"`
}

// ValidationResult Errors holds one map per beneficiary position (empty map = no errors).
type ValidationResult struct {
	Valid  bool                         `json:"valid"`
	Errors []map[string]ValidationError `json:"errors"`
	Data   *struct {
		Beneficiaries []Record `json:"beneficiaries"`
	} `json:"data,omitempty"`
}

// FieldErrors beneficiary index -> field name -> message. This is the only error keying scheme
// used by the form engine.
type FieldErrors map[int]map[string]TranslatedText

// FieldErrorsFrom converts a validator response into FieldErrors, skipping empty maps.
func FieldErrorsFrom(res *ValidationResult) FieldErrors {
	out := FieldErrors{}
	if res == nil {
		return out
	}
	for i, m := range res.Errors {
		if len(m) == 0 {
			continue
		}
		fm := make(map[string]TranslatedText, len(m))
		for name, e := range m {
			fm[name] = e.Message
		}
		out[i] = fm
	}
	return out
}

// Clone deep-copies the error state.
func (fe FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(fe))
	for i, m := range fe {
		cp := make(map[string]TranslatedText, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Resolve returns the messages of one beneficiary in lang.
func (fe FieldErrors) Resolve(index int, lang Language) map[string]string {
	out := map[string]string{}
	for name, msg := range fe[index] {
		out[name] = msg.Get(lang)
	}
	return out
}
