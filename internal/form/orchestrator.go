// Package form is the multi-beneficiary form engine: one Orchestrator per form session
// holding the beneficiary records, the error state, the auto-copy set and the in-flight
// upload set.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/i18n"
)

var (
	ErrUploadsInFlight   = errors.New("uploads in flight")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrSessionClosed     = errors.New("form session already submitted")
	ErrBeneficiaryIndex  = errors.New("beneficiary index out of range")
	ErrUnknownField      = errors.New("unknown field")
	ErrNotFileField      = errors.New("field does not hold files")
	ErrCopyFromPrevious  = errors.New("copy from previous not available")
	ErrAutoCopyFileField = errors.New("auto-copy not available for file fields")
)

// State of the orchestrator's state machine
type State int

const (
	StateEditing State = iota
	StateValidating
	StateEditingWithErrors
	StateSubmitting
	StateNavigated
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateEditingWithErrors:
		return "editing_with_errors"
	case StateSubmitting:
		return "submitting"
	case StateNavigated:
		return "navigated"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Validator checks the ordered beneficiary list for one country.
type Validator interface {
	ValidateFormData(ctx context.Context, countryID string, records []domain.Record, lang domain.Language) (*domain.ValidationResult, error)
}

// ApplicationCreator persists a validated submission.
type ApplicationCreator interface {
	CreateApplication(ctx context.Context, req domain.CreateApplicationRequest) (*domain.Application, error)
}

// SubmissionError is a failed validation or creation call. It is shown as one generic
// alert and leaves the form state untouched.
type SubmissionError struct {
	Message domain.TranslatedText
	Err     error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// SubmitResult outcome of a submit that reached the validator
type SubmitResult struct {
	Valid         bool
	ApplicationID string
	Records       []domain.Record
}

// Config seeds a new orchestrator. Records and AutoCopy are optional; without them the
// session starts with one defaults-initialised beneficiary and the schema's auto_copy set.
type Config struct {
	Schema    *domain.Schema
	RequestID string
	Records   []domain.Record
	AutoCopy  []string
	Active    int

	Validator Validator
	Creator   ApplicationCreator
	Logger    *zap.Logger
	Now       func() time.Time
}

type fileKey struct {
	slot  int
	field string
}

type fileState struct {
	gen       uint64
	uploading bool
	err       domain.TranslatedText
	preview   string
	filename  string
}

type Orchestrator struct {
	mu sync.Mutex

	schema    *domain.Schema
	requestID string
	validator Validator
	creator   ApplicationCreator
	renderer  *Renderer
	logger    *zap.Logger

	records []domain.Record
	// slots gives every record a stable identity that survives removals before it
	slots    []int
	nextSlot int
	active   int
	autoCopy map[string]bool
	errors   domain.FieldErrors
	state    State

	// uploads holds ids set through SetUploadState; transfers holds coordinator uploads by
	// slot so their listed id follows the record when earlier ones are removed
	uploads   map[string]int
	transfers map[fileKey]int
	files     map[fileKey]*fileState

	applicationID string
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Schema == nil {
		return nil, errors.New("form: schema is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		schema:    cfg.Schema,
		requestID: cfg.RequestID,
		validator: cfg.Validator,
		creator:   cfg.Creator,
		renderer:  NewRenderer(cfg.Now),
		logger:    logger,
		autoCopy:  map[string]bool{},
		errors:    domain.FieldErrors{},
		uploads:   map[string]int{},
		transfers: map[fileKey]int{},
		files:     map[fileKey]*fileState{},
	}

	autoCopy := cfg.AutoCopy
	if autoCopy == nil {
		autoCopy = cfg.Schema.AutoCopyDefaults()
	}
	for _, name := range autoCopy {
		if f, ok := cfg.Schema.Field(name); ok && !f.IsFile() {
			o.autoCopy[name] = true
		}
	}

	if len(cfg.Records) == 0 {
		o.appendRecord(domain.InitializeRecord(cfg.Schema.Fields))
	} else {
		for _, r := range cfg.Records {
			if r == nil {
				r = domain.Record{}
			}
			o.appendRecord(r.Clone())
		}
	}
	o.active = clamp(cfg.Active, len(o.records))
	return o, nil
}

func (o *Orchestrator) appendRecord(r domain.Record) {
	o.records = append(o.records, r)
	o.slots = append(o.slots, o.nextSlot)
	o.nextSlot++
}

// Schema returns the (read-only) schema the session was opened with.
func (o *Orchestrator) Schema() *domain.Schema { return o.schema }

func (o *Orchestrator) RequestID() string { return o.requestID }

// ApplicationID is set once Submit succeeded.
func (o *Orchestrator) ApplicationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.applicationID
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Records returns a copy of the beneficiary list.
func (o *Orchestrator) Records() []domain.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.CloneRecords(o.records)
}

func (o *Orchestrator) Errors() domain.FieldErrors {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errors.Clone()
}

// AutoCopyFields returns the auto-copy set, sorted.
func (o *Orchestrator) AutoCopyFields() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoCopyLocked()
}

func (o *Orchestrator) autoCopyLocked() []string {
	out := make([]string, 0, len(o.autoCopy))
	for k := range o.autoCopy {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AddBeneficiary appends a defaults-initialised record, overlays the non-empty values of
// beneficiary 0 for every auto-copy field, and activates the new record.
func (o *Orchestrator) AddBeneficiary() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateNavigated {
		return 0, ErrSessionClosed
	}

	rec := domain.InitializeRecord(o.schema.Fields)
	first := o.records[0]
	for name := range o.autoCopy {
		if v, ok := first.Get(name); ok && !v.IsEmpty() {
			rec[name] = v
		}
	}
	o.appendRecord(rec)
	o.active = len(o.records) - 1
	return o.active, nil
}

// RemoveBeneficiary is a no-op when only one record remains.
func (o *Orchestrator) RemoveBeneficiary(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateNavigated {
		return ErrSessionClosed
	}
	if index < 0 || index >= len(o.records) {
		return ErrBeneficiaryIndex
	}
	if len(o.records) <= 1 {
		return nil
	}

	slot := o.slots[index]
	for k, fs := range o.files {
		if k.slot == slot {
			// pending uploads for the removed record must not land anywhere
			fs.gen++
			delete(o.files, k)
		}
	}
	for k := range o.transfers {
		if k.slot == slot {
			delete(o.transfers, k)
		}
	}

	o.records = append(o.records[:index:index], o.records[index+1:]...)
	o.slots = append(o.slots[:index:index], o.slots[index+1:]...)
	o.errors = shiftErrors(o.errors, index)

	if o.active >= index && o.active > 0 {
		o.active--
	}
	o.active = clamp(o.active, len(o.records))
	return nil
}

// shiftErrors drops the errors of the removed index and renumbers the following ones.
func shiftErrors(fe domain.FieldErrors, removed int) domain.FieldErrors {
	out := domain.FieldErrors{}
	for i, m := range fe {
		switch {
		case i < removed:
			out[i] = m
		case i > removed:
			out[i-1] = m
		}
	}
	return out
}

// SetFieldValue replaces one field of one record and clears that exact (index, field) error.
func (o *Orchestrator) SetFieldValue(index int, name string, v domain.Value) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateNavigated {
		return ErrSessionClosed
	}
	f, err := o.lookupLocked(index, name)
	if err != nil {
		return err
	}
	if f.IsFile() {
		// a direct edit supersedes any pending upload for the field
		fs := o.fileLocked(index, name)
		fs.gen++
		fs.uploading = false
		if !v.IsEmpty() {
			fs.err = domain.TranslatedText{}
		} else {
			fs.preview, fs.filename = "", ""
		}
	}
	o.setLocked(index, name, v)
	return nil
}

func (o *Orchestrator) setLocked(index int, name string, v domain.Value) {
	o.records[index] = o.records[index].With(name, v)
	if m, ok := o.errors[index]; ok {
		if _, has := m[name]; has {
			cp := make(map[string]domain.TranslatedText, len(m))
			for k, msg := range m {
				if k != name {
					cp[k] = msg
				}
			}
			if len(cp) == 0 {
				delete(o.errors, index)
			} else {
				o.errors[index] = cp
			}
		}
	}
}

func (o *Orchestrator) lookupLocked(index int, name string) (domain.Field, error) {
	if index < 0 || index >= len(o.records) {
		return nil, ErrBeneficiaryIndex
	}
	f, ok := o.schema.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	return f, nil
}

// CopyFromPrevious copies beneficiary index-1's value of name through the SetFieldValue path.
func (o *Orchestrator) CopyFromPrevious(index int, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateNavigated {
		return ErrSessionClosed
	}
	f, err := o.lookupLocked(index, name)
	if err != nil {
		return err
	}
	if index == 0 || f.IsFile() {
		return ErrCopyFromPrevious
	}
	prev, ok := o.records[index-1].Get(name)
	if !ok || prev.IsEmpty() {
		return ErrCopyFromPrevious
	}
	o.setLocked(index, name, prev)
	return nil
}

// ToggleAutoCopy changes auto-copy membership. It only affects beneficiaries added later.
func (o *Orchestrator) ToggleAutoCopy(name string, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	if f.IsFile() {
		return ErrAutoCopyFileField
	}
	if on {
		o.autoCopy[name] = true
	} else {
		delete(o.autoCopy, name)
	}
	return nil
}

func (o *Orchestrator) SetActive(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if index < 0 || index >= len(o.records) {
		return ErrBeneficiaryIndex
	}
	o.active = index
	return nil
}

// SetUploadState adds or removes an upload id ("<fieldId>-<beneficiaryIndex>") from the
// in-flight set. Ids are reference counted so two overlapping transfers under one id keep
// the set non-empty until both finish.
func (o *Orchestrator) SetUploadState(id string, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setUploadLocked(id, on)
}

func (o *Orchestrator) setUploadLocked(id string, on bool) {
	if on {
		o.uploads[id]++
		return
	}
	if o.uploads[id] <= 1 {
		delete(o.uploads, id)
		return
	}
	o.uploads[id]--
}

// Uploads lists in-flight upload ids, sorted.
func (o *Orchestrator) Uploads() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.uploadsLocked()
}

func (o *Orchestrator) uploadsLocked() []string {
	set := make(map[string]struct{}, len(o.uploads)+len(o.transfers))
	for id := range o.uploads {
		set[id] = struct{}{}
	}
	for k := range o.transfers {
		if i := o.indexOfSlot(k.slot); i >= 0 {
			set[UploadID(k.field, i)] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) inFlightLocked() bool {
	return len(o.uploads) > 0 || len(o.transfers) > 0
}

// beginTransferLocked and endTransferLocked count coordinator uploads per slot and field.
// A transfer whose record was removed has no entry left to end.
func (o *Orchestrator) beginTransferLocked(k fileKey) {
	o.transfers[k]++
}

func (o *Orchestrator) endTransferLocked(k fileKey) {
	n, ok := o.transfers[k]
	if !ok {
		return
	}
	if n <= 1 {
		delete(o.transfers, k)
		return
	}
	o.transfers[k] = n - 1
}

// SubmitDisabled reports whether the submit control is disabled.
func (o *Orchestrator) SubmitDisabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submitDisabledLocked()
}

func (o *Orchestrator) submitDisabledLocked() bool {
	return o.inFlightLocked() || o.state == StateValidating || o.state == StateSubmitting || o.state == StateNavigated
}

func (o *Orchestrator) editingState() State {
	if len(o.errors) > 0 {
		return StateEditingWithErrors
	}
	return StateEditing
}

// Submit validates the beneficiary list and, when valid, creates the application (or reuses
// the request the session was opened for). Call failures come back as *SubmissionError.
func (o *Orchestrator) Submit(ctx context.Context, lang domain.Language, agentID string) (*SubmitResult, error) {
	o.mu.Lock()
	switch {
	case o.state == StateNavigated:
		o.mu.Unlock()
		return nil, ErrSessionClosed
	case o.state == StateValidating || o.state == StateSubmitting:
		o.mu.Unlock()
		return nil, ErrSubmitInProgress
	case o.inFlightLocked():
		o.mu.Unlock()
		return nil, ErrUploadsInFlight
	}
	o.state = StateValidating
	records := domain.CloneRecords(o.records)
	countryID := o.schema.CountryID
	o.mu.Unlock()

	stripped := make([]domain.Record, len(records))
	for i, r := range records {
		stripped[i] = r.Without(domain.PassportDataKey)
	}

	res, err := o.validator.ValidateFormData(ctx, countryID, stripped, lang)
	if err != nil {
		o.logger.Warn("Failed to validate form", zap.String("country_id", countryID), zap.Error(err))
		o.mu.Lock()
		o.state = o.editingState()
		o.mu.Unlock()
		return nil, &SubmissionError{Message: i18n.Text(i18n.SubmitError), Err: err}
	}

	if !res.Valid {
		o.mu.Lock()
		o.errors = domain.FieldErrorsFrom(res)
		o.state = o.editingState()
		o.mu.Unlock()
		return &SubmitResult{Valid: false}, nil
	}

	o.mu.Lock()
	o.errors = domain.FieldErrors{}
	o.state = StateSubmitting
	o.mu.Unlock()

	appID := o.requestID
	if appID == "" {
		app, err := o.creator.CreateApplication(ctx, domain.CreateApplicationRequest{
			CountryID:     countryID,
			Beneficiaries: records,
			AgentID:       agentID,
		})
		if err != nil {
			o.logger.Warn("Failed to create application", zap.String("country_id", countryID), zap.Error(err))
			o.mu.Lock()
			o.state = o.editingState()
			o.mu.Unlock()
			return nil, &SubmissionError{Message: i18n.Text(i18n.SubmitError), Err: err}
		}
		appID = app.ID
	}

	o.mu.Lock()
	o.state = StateNavigated
	o.applicationID = appID
	o.mu.Unlock()

	o.logger.Info("Form submitted",
		zap.String("country_id", countryID),
		zap.String("application_id", appID),
		zap.Int("beneficiaries", len(records)),
	)
	return &SubmitResult{Valid: true, ApplicationID: appID, Records: records}, nil
}

// Snapshot is the persistable part of a session.
type Snapshot struct {
	CountryID string          `json:"country_id"`
	RequestID string          `json:"request_id,omitempty"`
	Records   []domain.Record `json:"beneficiaries"`
	AutoCopy  []string        `json:"auto_copy"`
	Active    int             `json:"active"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		CountryID: o.schema.CountryID,
		RequestID: o.requestID,
		Records:   domain.CloneRecords(o.records),
		AutoCopy:  o.autoCopyLocked(),
		Active:    o.active,
	}
}

// SessionView everything a front end needs to paint the form.
type SessionView struct {
	CountryID      string                    `json:"country_id"`
	CountryName    string                    `json:"country_name"`
	RequestID      string                    `json:"request_id,omitempty"`
	ApplicationID  string                    `json:"application_id,omitempty"`
	State          State                     `json:"state"`
	Language       domain.Language           `json:"language"`
	Dir            string                    `json:"dir"`
	Active         int                       `json:"active"`
	Beneficiaries  []BeneficiaryView         `json:"beneficiaries"`
	AutoCopy       []string                  `json:"auto_copy"`
	Uploads        []string                  `json:"uploads"`
	SubmitDisabled bool                      `json:"submit_disabled"`
	SubmitText     string                    `json:"submit_text"`
	Unsupported    []domain.UnsupportedField `json:"unsupported_fields,omitempty"`
}

func (o *Orchestrator) View(lang domain.Language) SessionView {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := SessionView{
		CountryID:      o.schema.CountryID,
		CountryName:    o.schema.CountryName.Get(lang),
		RequestID:      o.requestID,
		ApplicationID:  o.applicationID,
		State:          o.state,
		Language:       lang,
		Dir:            lang.Dir(),
		Active:         o.active,
		AutoCopy:       o.autoCopyLocked(),
		Uploads:        o.uploadsLocked(),
		SubmitDisabled: o.submitDisabledLocked(),
		SubmitText:     o.schema.SubmitButtonText.Get(lang),
		Unsupported:    o.schema.Unsupported,
	}
	for i, rec := range o.records {
		var prev domain.Record
		if i > 0 {
			prev = o.records[i-1]
		}
		v.Beneficiaries = append(v.Beneficiaries, RenderBeneficiary(o.renderer, BeneficiaryInput{
			Index:    i,
			Active:   i == o.active,
			Fields:   o.schema.Fields,
			Record:   rec,
			Previous: prev,
			Errors:   o.errors[i],
			AutoCopy: o.autoCopy,
			Files:    o.fileStatusesLocked(i, lang),
			Language: lang,
		}))
	}
	return v
}

func (o *Orchestrator) fileLocked(index int, name string) *fileState {
	k := fileKey{slot: o.slots[index], field: name}
	fs, ok := o.files[k]
	if !ok {
		fs = &fileState{}
		o.files[k] = fs
	}
	return fs
}

func (o *Orchestrator) fileStatusesLocked(index int, lang domain.Language) map[string]FileStatus {
	slot := o.slots[index]
	out := map[string]FileStatus{}
	for k, fs := range o.files {
		if k.slot != slot {
			continue
		}
		out[k.field] = FileStatus{Uploading: fs.uploading, Preview: fs.preview, Filename: fs.filename, Error: fs.err.Get(lang)}
	}
	return out
}

// indexOfSlot returns the current position of a stable slot id, or -1 once removed.
func (o *Orchestrator) indexOfSlot(slot int) int {
	for i, s := range o.slots {
		if s == slot {
			return i
		}
	}
	return -1
}

// UploadID is the in-flight key of one field of one beneficiary.
func UploadID(field string, index int) string {
	return field + "-" + strconv.Itoa(index)
}

func clamp(i, n int) int {
	if i < 0 || n == 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
