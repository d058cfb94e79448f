package form

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"visakal-form/internal/domain"
	"visakal-form/internal/i18n"
)

// ErrInvalidInput is returned by CoerceInput when a value does not fit the field kind.
var ErrInvalidInput = errors.New("invalid field input")

const dateLayout = "2006-01-02"

// Props is everything one widget needs besides its descriptor.
type Props struct {
	Value            domain.Value
	Error            string
	Language         domain.Language
	FieldID          string
	BeneficiaryIndex int
	File             *FileStatus
}

// FileStatus upload-side state of a document/photo widget
type FileStatus struct {
	Uploading bool
	Error     string
	Preview   string
	Filename  string
}

type TextAttrs struct {
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`
}

type NumberAttrs struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
}

// DateAttrs min/max already resolved to calendar dates
type DateAttrs struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

type OptionView struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type SelectAttrs struct {
	Options  []OptionView `json:"options"`
	Multiple bool         `json:"multiple"`
}

type FileAttrs struct {
	Accept     string   `json:"accept"`
	Formats    []string `json:"formats"`
	MaxSizeMB  *float64 `json:"max_size_mb,omitempty"`
	Uploading  bool     `json:"uploading"`
	Error      string   `json:"upload_error,omitempty"`
	Preview    string   `json:"preview,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	ButtonText string   `json:"button_text"`
	Removable  bool     `json:"removable"`
}

// Widget is the controlled-input view model of one field. Exactly one of the
// kind-specific attribute blocks is set.
type Widget struct {
	Kind        domain.FieldType `json:"kind"`
	Name        string           `json:"name"`
	FieldID     string           `json:"field_id"`
	Beneficiary int              `json:"beneficiary"`
	Label       string           `json:"label"`
	Placeholder string           `json:"placeholder,omitempty"`
	Required    bool             `json:"required"`
	Dir         string           `json:"dir"`
	Value       domain.Value     `json:"value"`
	Error       string           `json:"error,omitempty"`

	Text   *TextAttrs   `json:"text,omitempty"`
	Number *NumberAttrs `json:"number,omitempty"`
	Date   *DateAttrs   `json:"date,omitempty"`
	Select *SelectAttrs `json:"select,omitempty"`
	File   *FileAttrs   `json:"file,omitempty"`
}

// Renderer turns descriptors into widgets. now is consulted on every render so "today"
// bounds stay relative for long-lived sessions.
type Renderer struct {
	now func() time.Time
}

func NewRenderer(now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{now: now}
}

func (r *Renderer) Render(f domain.Field, p Props) Widget {
	b := f.Base()
	w := Widget{
		Kind:        b.FieldType,
		Name:        b.Name,
		FieldID:     p.FieldID,
		Beneficiary: p.BeneficiaryIndex,
		Label:       b.Label.Get(p.Language),
		Required:    b.Required,
		Dir:         p.Language.Dir(),
		Value:       p.Value,
		Error:       p.Error,
	}
	if w.FieldID == "" {
		w.FieldID = b.Name
	}
	if b.Placeholder != nil {
		w.Placeholder = b.Placeholder.Get(p.Language)
	}
	f.Accept(&widgetBuilder{r: r, w: &w, p: p})
	return w
}

type widgetBuilder struct {
	r *Renderer
	w *Widget
	p Props
}

func (v *widgetBuilder) VisitString(f *domain.StringField) {
	v.w.Text = &TextAttrs{MinLength: f.MinLength, MaxLength: f.MaxLength}
}

func (v *widgetBuilder) VisitNumber(f *domain.NumberField) {
	v.w.Number = &NumberAttrs{Min: f.MinValue, Max: f.MaxValue, Step: f.Step}
}

func (v *widgetBuilder) VisitDate(f *domain.DateField) {
	v.w.Date = &DateAttrs{Min: v.r.resolveDate(f.MinDate), Max: v.r.resolveDate(f.MaxDate)}
}

func (v *widgetBuilder) VisitSelect(f *domain.SelectField) {
	selected := map[string]bool{}
	if f.Multiple {
		for _, it := range v.p.Value.Items() {
			selected[it] = true
		}
	} else if s, ok := v.p.Value.Str(); ok {
		selected[s] = true
	}

	placeholder := i18n.Get(i18n.SelectOption, v.p.Language)
	if v.w.Placeholder != "" {
		placeholder = v.w.Placeholder
	}
	opts := make([]OptionView, 0, len(f.Options)+1)
	// sentinel empty option
	opts = append(opts, OptionView{Value: "", Label: placeholder, Selected: len(selected) == 0 || selected[""]})
	for _, o := range f.Options {
		opts = append(opts, OptionView{Value: o.Value, Label: o.Label.Get(v.p.Language), Selected: selected[o.Value]})
	}
	v.w.Select = &SelectAttrs{Options: opts, Multiple: f.Multiple}
}

func (v *widgetBuilder) VisitDocument(f *domain.DocumentField) {
	v.w.File = v.fileAttrs(f.Formats(), f.MaxSizeMB, i18n.UploadDocument)
}

func (v *widgetBuilder) VisitPhoto(f *domain.PhotoField) {
	v.w.File = v.fileAttrs(f.Formats(), f.MaxSizeMB, i18n.UploadPhoto)
	if v.w.File.Preview == "" && !v.w.File.Uploading {
		if s, ok := v.p.Value.Str(); ok && s != "" {
			v.w.File.Preview = s
		}
	}
}

func (v *widgetBuilder) fileAttrs(formats []string, maxMB *float64, emptyText i18n.Key) *FileAttrs {
	accept := make([]string, len(formats))
	for i, f := range formats {
		accept[i] = "." + f
	}
	fa := &FileAttrs{
		Accept:     strings.Join(accept, ","),
		Formats:    formats,
		MaxSizeMB:  maxMB,
		ButtonText: i18n.Get(i18n.ChooseFile, v.p.Language),
	}
	if v.p.File != nil {
		fa.Uploading = v.p.File.Uploading
		fa.Error = v.p.File.Error
		fa.Preview = v.p.File.Preview
		fa.Filename = v.p.File.Filename
	}
	if fa.Uploading {
		fa.ButtonText = i18n.Get(i18n.Uploading, v.p.Language)
	}
	url, _ := v.p.Value.Str()
	if fa.Filename == "" && url != "" {
		fa.Filename = DisplayFilename(url)
	}
	fa.Removable = url != "" && !fa.Uploading
	if v.w.Placeholder == "" {
		v.w.Placeholder = i18n.Get(emptyText, v.p.Language)
	}
	return fa
}

func (r *Renderer) resolveDate(s string) string {
	if s == domain.DateToday {
		return r.now().UTC().Format(dateLayout)
	}
	return s
}

// DisplayFilename strips the storage prefix from a stored reference:
// ".../3f2a_passport.pdf" -> "passport.pdf".
func DisplayFilename(url string) string {
	last := url
	if i := strings.LastIndex(url, "/"); i >= 0 {
		last = url[i+1:]
	}
	if i := strings.Index(last, "_"); i >= 0 {
		return last[i+1:]
	}
	return ""
}

// CoerceInput normalises a user edit to the value type of f.
// Number fields map "" to the empty-string "unset" value and anything else to a number.
func CoerceInput(f domain.Field, in domain.Value) (domain.Value, error) {
	c := &inputCoercer{in: in}
	f.Accept(c)
	if c.err != nil {
		return domain.Value{}, fmt.Errorf("%s: %w", f.Base().Name, c.err)
	}
	return c.out, nil
}

type inputCoercer struct {
	in  domain.Value
	out domain.Value
	err error
}

func (c *inputCoercer) VisitString(*domain.StringField) {
	c.text()
}

func (c *inputCoercer) VisitNumber(*domain.NumberField) {
	if c.in.IsNull() {
		c.out = domain.StringValue("")
		return
	}
	if n, ok := c.in.Num(); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			c.err = fmt.Errorf("%w: number must be finite", ErrInvalidInput)
			return
		}
		c.out = domain.NumberValue(n)
		return
	}
	s, ok := c.in.Str()
	if !ok {
		c.err = ErrInvalidInput
		return
	}
	s = strings.TrimSpace(s)
	if s == "" {
		c.out = domain.StringValue("")
		return
	}
	// ParseFloat accepts "NaN" and "Inf", which JSON cannot carry
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		c.err = fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
		return
	}
	c.out = domain.NumberValue(n)
}

func (c *inputCoercer) VisitDate(*domain.DateField) {
	c.text()
	if c.err != nil {
		return
	}
	if s, _ := c.out.Str(); s != "" {
		if _, err := time.Parse(dateLayout, s); err != nil {
			c.err = fmt.Errorf("%w: %q is not a date", ErrInvalidInput, s)
		}
	}
}

func (c *inputCoercer) VisitSelect(f *domain.SelectField) {
	if !f.Multiple {
		c.text()
		return
	}
	switch c.in.Kind() {
	case domain.KindNull:
		c.out = domain.ListValue(nil)
	case domain.KindList:
		c.out = c.in
	case domain.KindString:
		s, _ := c.in.Str()
		if s == "" {
			c.out = domain.ListValue(nil)
		} else {
			c.out = domain.ListValue([]string{s})
		}
	default:
		c.err = ErrInvalidInput
	}
}

func (c *inputCoercer) VisitDocument(*domain.DocumentField) { c.file() }
func (c *inputCoercer) VisitPhoto(*domain.PhotoField)       { c.file() }

func (c *inputCoercer) text() {
	switch c.in.Kind() {
	case domain.KindNull:
		c.out = domain.StringValue("")
	case domain.KindString:
		c.out = c.in
	case domain.KindNumber, domain.KindBool:
		c.out = domain.StringValue(c.in.Display())
	default:
		c.err = ErrInvalidInput
	}
}

func (c *inputCoercer) file() {
	switch c.in.Kind() {
	case domain.KindNull:
		c.out = domain.NullValue()
	case domain.KindString, domain.KindFile:
		s, _ := c.in.Str()
		if s == "" {
			c.out = domain.NullValue()
		} else {
			c.out = domain.FileValue(s)
		}
	default:
		c.err = ErrInvalidInput
	}
}
