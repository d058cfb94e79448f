package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/events"
	"visakal-form/internal/form"
	"visakal-form/internal/metrics"
	"visakal-form/internal/repository"
	"visakal-form/internal/visaapi"
)

var (
	ErrSessionNotFound     = errors.New("form session not found")
	ErrCountryRequired     = errors.New("country_id is required")
	ErrApplicationNotFound = errors.New("application not found")
)

// VisaAPI is the part of the visa backend the form service calls.
type VisaAPI interface {
	form.Validator
	form.ApplicationCreator
	form.Storage
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
}

// SchemaSource loads the form schema of a country, usually through the cache.
type SchemaSource interface {
	FetchFormSchema(ctx context.Context, countryID string, lang domain.Language) (*domain.Schema, error)
}

type formSession struct {
	id       string
	clientID string
	orch     *form.Orchestrator
	uploads  *form.UploadCoordinator
	lastUsed time.Time

	// draftMu orders draft writes of this session: the snapshot is taken under it, so a
	// later write always carries a later state. closed is set once the draft is deleted.
	draftMu sync.Mutex
	closed  bool
}

// FormService hosts the form sessions of all clients. Sessions live in memory and are
// written through to the drafts repository after every mutation, so a session evicted by
// the janitor or lost in a restart is rebuilt from its draft on next access.
type FormService struct {
	api      VisaAPI
	schemas  SchemaSource
	drafts   repository.DraftsRepository
	events   events.Publisher
	draftTTL time.Duration
	idleTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	sessions map[string]*formSession
}

type FormServiceConfig struct {
	API      VisaAPI
	Schemas  SchemaSource
	Drafts   repository.DraftsRepository
	Events   events.Publisher
	DraftTTL time.Duration
	// IdleTTL evicts in-memory sessions not touched for this long; their drafts stay.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

func NewFormService(cfg FormServiceConfig) *FormService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := cfg.Events
	if pub == nil {
		pub = events.Nop{}
	}
	drafts := cfg.Drafts
	if drafts == nil {
		drafts = repository.NewMemoryDraftsRepository()
	}
	draftTTL := cfg.DraftTTL
	if draftTTL <= 0 {
		draftTTL = 72 * time.Hour
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &FormService{
		api:      cfg.API,
		schemas:  cfg.Schemas,
		drafts:   drafts,
		events:   pub,
		draftTTL: draftTTL,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: map[string]*formSession{},
	}
}

// FormResponse session id plus the rendered view
type FormResponse struct {
	ID string `json:"id"`
	form.SessionView
}

type OpenFormRequest struct {
	ClientID  string
	CountryID string
	RequestID string
	Language  domain.Language
}

// OpenForm starts a session. With a request id the beneficiaries of that existing
// application are loaded for editing.
func (s *FormService) OpenForm(ctx context.Context, req OpenFormRequest) (*FormResponse, error) {
	if req.CountryID == "" {
		return nil, ErrCountryRequired
	}
	schema, err := s.loadSchema(ctx, req.CountryID, req.Language)
	if err != nil {
		return nil, err
	}

	var records []domain.Record
	if req.RequestID != "" {
		app, err := s.api.GetApplication(ctx, req.RequestID)
		if err != nil {
			if visaapi.IsNotFound(err) {
				return nil, ErrApplicationNotFound
			}
			return nil, fmt.Errorf("failed to load application %s: %w", req.RequestID, err)
		}
		records = app.Records()
	}

	sess, err := s.newSession(s.newID(), req.ClientID, schema, form.Snapshot{
		CountryID: req.CountryID,
		RequestID: req.RequestID,
		Records:   records,
	}, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()
	metrics.RecordSessionOpened(req.CountryID)

	s.persist(ctx, sess)
	s.publish(ctx, events.Event{
		Type:          events.FormOpened,
		SessionID:     sess.id,
		CountryID:     req.CountryID,
		RequestID:     req.RequestID,
		Beneficiaries: sess.orch.Len(),
	})

	s.logger.Info("Form session opened",
		zap.String("session_id", sess.id),
		zap.String("country_id", req.CountryID),
		zap.String("request_id", req.RequestID),
	)
	return s.response(sess, req.Language), nil
}

func (s *FormService) loadSchema(ctx context.Context, countryID string, lang domain.Language) (*domain.Schema, error) {
	schema, err := s.schemas.FetchFormSchema(ctx, countryID, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to load form schema for %s: %w", countryID, err)
	}
	for _, u := range schema.Unsupported {
		s.logger.Warn("Unsupported field type in schema",
			zap.String("country_id", countryID),
			zap.String("field", u.Name),
			zap.String("field_type", string(u.FieldType)),
		)
	}
	return schema, nil
}

// newSession snapshot.AutoCopy nil means the schema defaults apply.
func (s *FormService) newSession(id, clientID string, schema *domain.Schema, snap form.Snapshot, autoCopy []string) (*formSession, error) {
	orch, err := form.NewOrchestrator(form.Config{
		Schema:    schema,
		RequestID: snap.RequestID,
		Records:   snap.Records,
		AutoCopy:  autoCopy,
		Active:    snap.Active,
		Validator: s.api,
		Creator:   s.api,
		Logger:    s.logger.With(zap.String("session_id", id)),
	})
	if err != nil {
		return nil, err
	}
	return &formSession{
		id:       id,
		clientID: clientID,
		orch:     orch,
		uploads:  form.NewUploadCoordinator(orch, s.api, s.logger),
		lastUsed: s.now(),
	}, nil
}

// session finds a live session or rebuilds it from its draft.
func (s *FormService) session(ctx context.Context, clientID, id string, lang domain.Language) (*formSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		sess.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		if sess.clientID != clientID {
			return nil, ErrSessionNotFound
		}
		return sess, nil
	}

	draft, err := s.drafts.GetDraft(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDraftNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if draft.ClientID != clientID {
		return nil, ErrSessionNotFound
	}
	schema, err := s.loadSchema(ctx, draft.CountryID, lang)
	if err != nil {
		return nil, err
	}
	autoCopy := draft.AutoCopy
	if autoCopy == nil {
		autoCopy = []string{}
	}
	restored, err := s.newSession(id, clientID, schema, form.Snapshot{
		CountryID: draft.CountryID,
		RequestID: draft.RequestID,
		Records:   draft.Beneficiaries,
		Active:    draft.Active,
	}, autoCopy)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = restored
	metrics.SetActiveSessions(len(s.sessions))
	s.logger.Info("Form session restored from draft", zap.String("session_id", id))
	return restored, nil
}

func (s *FormService) persist(ctx context.Context, sess *formSession) {
	sess.draftMu.Lock()
	defer sess.draftMu.Unlock()
	if sess.closed || sess.orch.State() == form.StateNavigated {
		return
	}
	snap := sess.orch.Snapshot()
	now := s.now()
	err := s.drafts.SaveDraft(ctx, &repository.Draft{
		ID:            sess.id,
		ClientID:      sess.clientID,
		CountryID:     snap.CountryID,
		RequestID:     snap.RequestID,
		Beneficiaries: snap.Records,
		AutoCopy:      snap.AutoCopy,
		Active:        snap.Active,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.draftTTL),
	})
	if err != nil {
		s.logger.Warn("Failed to save draft", zap.String("session_id", sess.id), zap.Error(err))
	}
}

// dropDraft deletes the draft and stops any later write of this session from
// re-creating it.
func (s *FormService) dropDraft(ctx context.Context, sess *formSession) error {
	sess.draftMu.Lock()
	defer sess.draftMu.Unlock()
	sess.closed = true
	return s.drafts.DeleteDraft(ctx, sess.id)
}

func (s *FormService) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		metrics.RecordPublishFailure(string(e.Type))
		s.logger.Warn("Failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func (s *FormService) response(sess *formSession, lang domain.Language) *FormResponse {
	return &FormResponse{ID: sess.id, SessionView: sess.orch.View(lang)}
}

// mutate runs fn against the session, then saves the draft and renders the view.
func (s *FormService) mutate(ctx context.Context, clientID, id string, lang domain.Language, fn func(*formSession) error) (*FormResponse, error) {
	sess, err := s.session(ctx, clientID, id, lang)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	s.persist(ctx, sess)
	return s.response(sess, lang), nil
}

func (s *FormService) GetForm(ctx context.Context, clientID, id string, lang domain.Language) (*FormResponse, error) {
	sess, err := s.session(ctx, clientID, id, lang)
	if err != nil {
		return nil, err
	}
	return s.response(sess, lang), nil
}

// SetField coerces the raw input to the field's type and stores it.
func (s *FormService) SetField(ctx context.Context, clientID, id string, lang domain.Language, index int, name string, in domain.Value) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		f, ok := sess.orch.Schema().Field(name)
		if !ok {
			return fmt.Errorf("%w: %s", form.ErrUnknownField, name)
		}
		v, err := form.CoerceInput(f, in)
		if err != nil {
			return err
		}
		return sess.orch.SetFieldValue(index, name, v)
	})
}

func (s *FormService) CopyFromPrevious(ctx context.Context, clientID, id string, lang domain.Language, index int, name string) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		return sess.orch.CopyFromPrevious(index, name)
	})
}

func (s *FormService) ToggleAutoCopy(ctx context.Context, clientID, id string, lang domain.Language, name string, on bool) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		return sess.orch.ToggleAutoCopy(name, on)
	})
}

func (s *FormService) AddBeneficiary(ctx context.Context, clientID, id string, lang domain.Language) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		_, err := sess.orch.AddBeneficiary()
		return err
	})
}

func (s *FormService) RemoveBeneficiary(ctx context.Context, clientID, id string, lang domain.Language, index int) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		return sess.orch.RemoveBeneficiary(index)
	})
}

func (s *FormService) SetActive(ctx context.Context, clientID, id string, lang domain.Language, index int) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		return sess.orch.SetActive(index)
	})
}

// UploadFile blocks for the duration of the transfer. Constraint and transfer failures
// are reported on the field, not as an error.
func (s *FormService) UploadFile(ctx context.Context, clientID, id string, lang domain.Language, index int, name string, file *form.SelectedFile) (*FormResponse, error) {
	if file != nil {
		defer func(start time.Time) { metrics.ObserveUpload(time.Since(start)) }(time.Now())
	}
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		return sess.uploads.Select(ctx, index, name, file)
	})
}

func (s *FormService) RemoveFile(ctx context.Context, clientID, id string, lang domain.Language, index int, name string) (*FormResponse, error) {
	return s.mutate(ctx, clientID, id, lang, func(sess *formSession) error {
		return sess.uploads.Remove(ctx, index, name)
	})
}

type SubmitResponse struct {
	Valid         bool   `json:"valid"`
	ApplicationID string `json:"application_id,omitempty"`
	// Redirect is where the client continues: pricing selection for the application
	Redirect string        `json:"redirect,omitempty"`
	Form     *FormResponse `json:"form"`
}

// Submit validates and creates the application. A *form.SubmissionError is returned
// unchanged so the caller can show its generic message.
func (s *FormService) Submit(ctx context.Context, clientID, id string, lang domain.Language, agentID string) (*SubmitResponse, error) {
	sess, err := s.session(ctx, clientID, id, lang)
	if err != nil {
		return nil, err
	}
	res, err := sess.orch.Submit(ctx, lang, agentID)
	if err != nil {
		metrics.RecordSubmission("error")
		return nil, err
	}
	if !res.Valid {
		metrics.RecordSubmission("invalid")
		s.persist(ctx, sess)
		return &SubmitResponse{Valid: false, Form: s.response(sess, lang)}, nil
	}

	metrics.RecordSubmission("valid")
	if err := s.dropDraft(ctx, sess); err != nil {
		s.logger.Warn("Failed to delete submitted draft", zap.String("session_id", sess.id), zap.Error(err))
	}

	countryID := sess.orch.Schema().CountryID
	requestID := sess.orch.RequestID()
	s.publish(ctx, events.Event{
		Type:          events.FormSubmitted,
		SessionID:     sess.id,
		CountryID:     countryID,
		RequestID:     res.ApplicationID,
		Beneficiaries: len(res.Records),
	})
	if requestID == "" {
		s.publish(ctx, events.Event{
			Type:          events.ApplicationCreated,
			SessionID:     sess.id,
			CountryID:     countryID,
			RequestID:     res.ApplicationID,
			Beneficiaries: len(res.Records),
		})
	}

	return &SubmitResponse{
		Valid:         true,
		ApplicationID: res.ApplicationID,
		Redirect:      fmt.Sprintf("/pricing/%s?request_id=%s", url.PathEscape(countryID), url.QueryEscape(res.ApplicationID)),
		Form:          s.response(sess, lang),
	}, nil
}

// ListDrafts open drafts of the client, newest first.
func (s *FormService) ListDrafts(ctx context.Context, clientID string) ([]repository.Draft, error) {
	drafts, err := s.drafts.ListDrafts(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return drafts, nil
}

// DiscardForm drops the session and its draft.
func (s *FormService) DiscardForm(ctx context.Context, clientID, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok && sess.clientID == clientID {
		delete(s.sessions, id)
		metrics.SetActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()
	if ok && sess.clientID != clientID {
		return ErrSessionNotFound
	}
	if ok {
		return s.dropDraft(ctx, sess)
	}
	draft, err := s.drafts.GetDraft(ctx, id)
	if err != nil || draft.ClientID != clientID {
		return ErrSessionNotFound
	}
	return s.drafts.DeleteDraft(ctx, id)
}

// Sweep evicts idle sessions from memory and purges expired drafts.
func (s *FormService) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.idleTTL)
	s.mu.Lock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) && len(sess.orch.Uploads()) == 0 {
			delete(s.sessions, id)
			evicted++
		}
	}
	metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	purged, err := s.drafts.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn("Failed to purge expired drafts", zap.Error(err))
	}
	if evicted > 0 || purged > 0 {
		s.logger.Info("Form sessions swept", zap.Int("evicted", evicted), zap.Int64("drafts_purged", purged))
	}
}

// RunJanitor sweeps on the given cron schedule ("@every 5m", "*/10 * * * *") until ctx is
// done. Overlapping runs are skipped.
func (s *FormService) RunJanitor(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
