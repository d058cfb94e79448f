package form

import (
	"strconv"

	"visakal-form/internal/domain"
	"visakal-form/internal/i18n"
)

// FieldView is one rendered field plus the per-beneficiary copy controls.
type FieldView struct {
	Widget
	ShowAutoCopy         bool `json:"show_auto_copy"`
	AutoCopyChecked      bool `json:"auto_copy_checked"`
	ShowCopyFromPrevious bool `json:"show_copy_from_previous"`
}

type BeneficiaryView struct {
	Index  int         `json:"index"`
	Title  string      `json:"title"`
	Active bool        `json:"active"`
	Fields []FieldView `json:"fields"`
}

// BeneficiaryInput is one beneficiary's slice of the session state. Previous is nil for
// the first beneficiary; Errors is that beneficiary's entry of the canonical error map.
type BeneficiaryInput struct {
	Index    int
	Active   bool
	Fields   []domain.Field
	Record   domain.Record
	Previous domain.Record
	Errors   map[string]domain.TranslatedText
	AutoCopy map[string]bool
	Files    map[string]FileStatus
	Language domain.Language
}

// RenderBeneficiary renders every schema field in order.
func RenderBeneficiary(r *Renderer, in BeneficiaryInput) BeneficiaryView {
	bv := BeneficiaryView{
		Index:  in.Index,
		Title:  i18n.Get(i18n.Beneficiary, in.Language) + " " + strconv.Itoa(in.Index+1),
		Active: in.Active,
		Fields: make([]FieldView, 0, len(in.Fields)),
	}
	for _, f := range in.Fields {
		name := f.Base().Name
		val, ok := in.Record.Get(name)
		if !ok {
			val = domain.NullValue()
		}
		p := Props{
			Value:            val,
			Language:         in.Language,
			FieldID:          name,
			BeneficiaryIndex: in.Index,
		}
		if msg, ok := in.Errors[name]; ok {
			p.Error = msg.Get(in.Language)
		}
		if fs, ok := in.Files[name]; ok {
			fs := fs
			p.File = &fs
		}

		fv := FieldView{Widget: r.Render(f, p)}
		if !f.IsFile() {
			if in.Index == 0 {
				fv.ShowAutoCopy = true
				fv.AutoCopyChecked = in.AutoCopy[name]
			} else if in.Previous != nil {
				fv.ShowCopyFromPrevious = in.Previous.Filled(name)
			}
		}
		bv.Fields = append(bv.Fields, fv)
	}
	return bv
}
