package domain

// Language UI / content language
type Language string

const (
	LangEN Language = "en"
	LangHE Language = "he"
)

// ParseLanguage maps any unknown value to English.
func ParseLanguage(s string) Language {
	if Language(s) == LangHE {
		return LangHE
	}
	return LangEN
}

// Dir returns the text direction for the language ("rtl" for Hebrew).
func (l Language) Dir() string {
	if l == LangHE {
		return "rtl"
	}
	return "ltr"
}

// TranslatedText bilingual text as delivered by the visa API
type TranslatedText struct {
	En string `json:"en"`
	He string `json:"he"`
}

// Get resolves the text for lang, falling back to English when the Hebrew text is missing.
func (t TranslatedText) Get(lang Language) string {
	if lang == LangHE && t.He != "" {
		return t.He
	}
	return t.En
}

// IsZero reports whether both translations are empty.
func (t TranslatedText) IsZero() bool {
	return t.En == "" && t.He == ""
}

// Text builds a TranslatedText.
func Text(en, he string) TranslatedText {
	return TranslatedText{En: en, He: he}
}
