package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"visakal-form/internal/domain"
)

var ErrInvalidPreference = errors.New("invalid preference value")

// AuthTokenTTL how long a forwarded bearer token is remembered for a client
const AuthTokenTTL = 12 * time.Hour

func prefKey(clientID, name string) string {
	return "prefs:" + clientID + ":" + name
}

// pref is one persisted value with an in-memory copy. Init hydrates it, Set writes through.
type pref[T any] struct {
	kv     KV
	key    string
	ttl    time.Duration
	def    T
	parse  func(string) (T, error)
	format func(T) string

	mu  sync.RWMutex
	val T
}

func newPref[T any](kv KV, key string, def T, parse func(string) (T, error), format func(T) string) *pref[T] {
	return &pref[T]{kv: kv, key: key, def: def, parse: parse, format: format, val: def}
}

func (p *pref[T]) Init(ctx context.Context) error {
	raw, err := p.kv.Get(ctx, p.key)
	if err != nil {
		p.mu.Lock()
		p.val = p.def
		p.mu.Unlock()
		if errors.Is(err, ErrMiss) {
			return nil
		}
		return fmt.Errorf("load %s: %w", p.key, err)
	}
	v, err := p.parse(raw)
	if err != nil {
		// a corrupt stored value falls back to the default
		v = p.def
	}
	p.mu.Lock()
	p.val = v
	p.mu.Unlock()
	return nil
}

func (p *pref[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.val
}

func (p *pref[T]) Set(ctx context.Context, v T) error {
	if err := p.kv.Set(ctx, p.key, p.format(v), p.ttl); err != nil {
		return fmt.Errorf("save %s: %w", p.key, err)
	}
	p.mu.Lock()
	p.val = v
	p.mu.Unlock()
	return nil
}

func (p *pref[T]) Clear(ctx context.Context) error {
	if err := p.kv.Del(ctx, p.key); err != nil {
		return fmt.Errorf("clear %s: %w", p.key, err)
	}
	p.mu.Lock()
	p.val = p.def
	p.mu.Unlock()
	return nil
}

func parseString(s string) (string, error) { return s, nil }
func formatString(s string) string         { return s }

// ---- theme ----

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type ThemeStore struct{ p *pref[Theme] }

func NewThemeStore(kv KV, clientID string) *ThemeStore {
	return &ThemeStore{p: newPref(kv, prefKey(clientID, "theme"), ThemeLight, parseTheme, func(t Theme) string { return string(t) })}
}

func parseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	}
	return "", fmt.Errorf("%w: theme %q", ErrInvalidPreference, s)
}

func (s *ThemeStore) Init(ctx context.Context) error { return s.p.Init(ctx) }
func (s *ThemeStore) Get() Theme                     { return s.p.Get() }

func (s *ThemeStore) Set(ctx context.Context, t Theme) error {
	if _, err := parseTheme(string(t)); err != nil {
		return err
	}
	return s.p.Set(ctx, t)
}

func (s *ThemeStore) Toggle(ctx context.Context) (Theme, error) {
	next := ThemeDark
	if s.Get() == ThemeDark {
		next = ThemeLight
	}
	return next, s.p.Set(ctx, next)
}

// ---- language ----

type LanguageStore struct{ p *pref[domain.Language] }

func NewLanguageStore(kv KV, clientID string) *LanguageStore {
	return &LanguageStore{p: newPref(kv, prefKey(clientID, "language"), domain.LangEN, parseLanguage, func(l domain.Language) string { return string(l) })}
}

func parseLanguage(s string) (domain.Language, error) {
	switch domain.Language(s) {
	case domain.LangEN, domain.LangHE:
		return domain.Language(s), nil
	}
	return "", fmt.Errorf("%w: language %q", ErrInvalidPreference, s)
}

func (s *LanguageStore) Init(ctx context.Context) error { return s.p.Init(ctx) }
func (s *LanguageStore) Get() domain.Language           { return s.p.Get() }
func (s *LanguageStore) Dir() string                    { return s.p.Get().Dir() }

func (s *LanguageStore) Set(ctx context.Context, l domain.Language) error {
	if _, err := parseLanguage(string(l)); err != nil {
		return err
	}
	return s.p.Set(ctx, l)
}

// ---- accessibility ----

type ContrastMode string

const (
	ContrastStandard ContrastMode = "standard"
	ContrastHigh     ContrastMode = "high"
	ContrastLow      ContrastMode = "low"
)

// FontSize percentage of the base size
type FontSize string

const (
	FontSize100 FontSize = "100"
	FontSize110 FontSize = "110"
	FontSize125 FontSize = "125"
	FontSize150 FontSize = "150"
)

type Accessibility struct {
	Contrast     ContrastMode `json:"contrast"`
	FontSize     FontSize     `json:"font_size"`
	ReduceMotion bool         `json:"reduce_motion"`
	Monochrome   bool         `json:"monochrome"`
}

var defaultAccessibility = Accessibility{Contrast: ContrastStandard, FontSize: FontSize100}

func (a Accessibility) validate() error {
	switch a.Contrast {
	case ContrastStandard, ContrastHigh, ContrastLow:
	default:
		return fmt.Errorf("%w: contrast %q", ErrInvalidPreference, a.Contrast)
	}
	switch a.FontSize {
	case FontSize100, FontSize110, FontSize125, FontSize150:
	default:
		return fmt.Errorf("%w: font size %q", ErrInvalidPreference, a.FontSize)
	}
	return nil
}

type AccessibilityStore struct{ p *pref[Accessibility] }

func NewAccessibilityStore(kv KV, clientID string) *AccessibilityStore {
	parse := func(s string) (Accessibility, error) {
		a := defaultAccessibility
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return a, err
		}
		return a, a.validate()
	}
	format := func(a Accessibility) string {
		b, _ := json.Marshal(a)
		return string(b)
	}
	return &AccessibilityStore{p: newPref(kv, prefKey(clientID, "accessibility"), defaultAccessibility, parse, format)}
}

func (s *AccessibilityStore) Init(ctx context.Context) error { return s.p.Init(ctx) }
func (s *AccessibilityStore) Get() Accessibility             { return s.p.Get() }

func (s *AccessibilityStore) Set(ctx context.Context, a Accessibility) error {
	if err := a.validate(); err != nil {
		return err
	}
	return s.p.Set(ctx, a)
}

func (s *AccessibilityStore) SetContrast(ctx context.Context, c ContrastMode) error {
	a := s.Get()
	a.Contrast = c
	return s.Set(ctx, a)
}

func (s *AccessibilityStore) SetFontSize(ctx context.Context, f FontSize) error {
	a := s.Get()
	a.FontSize = f
	return s.Set(ctx, a)
}

func (s *AccessibilityStore) SetReduceMotion(ctx context.Context, on bool) error {
	a := s.Get()
	a.ReduceMotion = on
	return s.Set(ctx, a)
}

func (s *AccessibilityStore) SetMonochrome(ctx context.Context, on bool) error {
	a := s.Get()
	a.Monochrome = on
	return s.Set(ctx, a)
}

// ---- cookie consent ----

// ConsentStatus is empty until the user made a choice.
type ConsentStatus string

const (
	ConsentUnset    ConsentStatus = ""
	ConsentAccepted ConsentStatus = "accepted"
	ConsentRefused  ConsentStatus = "refused"
)

type CookieConsentStore struct{ p *pref[ConsentStatus] }

func NewCookieConsentStore(kv KV, clientID string) *CookieConsentStore {
	parse := func(s string) (ConsentStatus, error) {
		switch ConsentStatus(s) {
		case ConsentAccepted, ConsentRefused:
			return ConsentStatus(s), nil
		}
		return ConsentUnset, fmt.Errorf("%w: consent %q", ErrInvalidPreference, s)
	}
	return &CookieConsentStore{p: newPref(kv, prefKey(clientID, "cookie-consent"), ConsentUnset, parse, func(c ConsentStatus) string { return string(c) })}
}

func (s *CookieConsentStore) Init(ctx context.Context) error { return s.p.Init(ctx) }
func (s *CookieConsentStore) Get() ConsentStatus             { return s.p.Get() }

// Set records a choice; ConsentUnset resets it.
func (s *CookieConsentStore) Set(ctx context.Context, c ConsentStatus) error {
	switch c {
	case ConsentUnset:
		return s.p.Clear(ctx)
	case ConsentAccepted, ConsentRefused:
		return s.p.Set(ctx, c)
	}
	return fmt.Errorf("%w: consent %q", ErrInvalidPreference, c)
}

func (s *CookieConsentStore) Accept(ctx context.Context) error { return s.Set(ctx, ConsentAccepted) }
func (s *CookieConsentStore) Refuse(ctx context.Context) error { return s.Set(ctx, ConsentRefused) }
func (s *CookieConsentStore) Reset(ctx context.Context) error  { return s.Set(ctx, ConsentUnset) }
func (s *CookieConsentStore) HasChoiceMade() bool              { return s.Get() != ConsentUnset }
func (s *CookieConsentStore) HasConsent() bool                 { return s.Get() == ConsentAccepted }
func (s *CookieConsentStore) HasRefused() bool                 { return s.Get() == ConsentRefused }

// ---- auth token ----

type AuthTokenStore struct{ p *pref[string] }

func NewAuthTokenStore(kv KV, clientID string) *AuthTokenStore {
	p := newPref(kv, prefKey(clientID, "auth-token"), "", parseString, formatString)
	p.ttl = AuthTokenTTL
	return &AuthTokenStore{p: p}
}

func (s *AuthTokenStore) Init(ctx context.Context) error { return s.p.Init(ctx) }
func (s *AuthTokenStore) Get() string                    { return s.p.Get() }

// Set stores the token; an empty token clears it.
func (s *AuthTokenStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.p.Clear(ctx)
	}
	return s.p.Set(ctx, token)
}

type authTokenKey struct{}

// WithAuthToken attaches the caller's bearer token to ctx.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, authTokenKey{}, token)
}

// AuthTokenFromContext returns the token attached by WithAuthToken.
func AuthTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(authTokenKey{}).(string)
	return s
}

// ---- agent id ----

type AgentIDStore struct{ p *pref[string] }

func NewAgentIDStore(kv KV, clientID string) *AgentIDStore {
	return &AgentIDStore{p: newPref(kv, prefKey(clientID, "agent-id"), "", parseString, formatString)}
}

func (s *AgentIDStore) Init(ctx context.Context) error { return s.p.Init(ctx) }
func (s *AgentIDStore) Get() string                    { return s.p.Get() }

func (s *AgentIDStore) Set(ctx context.Context, id string) error {
	if id == "" {
		return s.p.Clear(ctx)
	}
	return s.p.Set(ctx, id)
}

func (s *AgentIDStore) Clear(ctx context.Context) error { return s.p.Clear(ctx) }

// ---- bundle ----

// Preferences groups every store of one client.
type Preferences struct {
	ClientID      string
	Theme         *ThemeStore
	Language      *LanguageStore
	Accessibility *AccessibilityStore
	CookieConsent *CookieConsentStore
	AuthToken     *AuthTokenStore
	AgentID       *AgentIDStore
}

func NewPreferences(kv KV, clientID string) *Preferences {
	return &Preferences{
		ClientID:      clientID,
		Theme:         NewThemeStore(kv, clientID),
		Language:      NewLanguageStore(kv, clientID),
		Accessibility: NewAccessibilityStore(kv, clientID),
		CookieConsent: NewCookieConsentStore(kv, clientID),
		AuthToken:     NewAuthTokenStore(kv, clientID),
		AgentID:       NewAgentIDStore(kv, clientID),
	}
}

// Init hydrates every store; the first failure is returned after all stores were tried.
func (p *Preferences) Init(ctx context.Context) error {
	var first error
	for _, hydrate := range []func(context.Context) error{
		p.Theme.Init, p.Language.Init, p.Accessibility.Init,
		p.CookieConsent.Init, p.AuthToken.Init, p.AgentID.Init,
	} {
		if err := hydrate(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PreferencesView serialisable state of all stores. The auth token is never exposed.
type PreferencesView struct {
	Theme         Theme           `json:"theme"`
	Language      domain.Language `json:"language"`
	Dir           string          `json:"dir"`
	Accessibility Accessibility   `json:"accessibility"`
	CookieConsent ConsentStatus   `json:"cookie_consent"`
	SignedIn      bool            `json:"signed_in"`
	AgentID       string          `json:"agent_id,omitempty"`
}

func (p *Preferences) View() PreferencesView {
	return PreferencesView{
		Theme:         p.Theme.Get(),
		Language:      p.Language.Get(),
		Dir:           p.Language.Dir(),
		Accessibility: p.Accessibility.Get(),
		CookieConsent: p.CookieConsent.Get(),
		SignedIn:      p.AuthToken.Get() != "",
		AgentID:       p.AgentID.Get(),
	}
}

// PreferencesUpdate partial update; nil fields are left alone.
type PreferencesUpdate struct {
	Theme         *Theme         `json:"theme,omitempty"`
	Language      *string        `json:"language,omitempty"`
	Accessibility *Accessibility `json:"accessibility,omitempty"`
	CookieConsent *ConsentStatus `json:"cookie_consent,omitempty"`
	AgentID       *string        `json:"agent_id,omitempty"`
}

// Apply writes every non-nil field of u.
func (p *Preferences) Apply(ctx context.Context, u PreferencesUpdate) error {
	if u.Theme != nil {
		if err := p.Theme.Set(ctx, *u.Theme); err != nil {
			return err
		}
	}
	if u.Language != nil {
		if err := p.Language.Set(ctx, domain.Language(*u.Language)); err != nil {
			return err
		}
	}
	if u.Accessibility != nil {
		if err := p.Accessibility.Set(ctx, *u.Accessibility); err != nil {
			return err
		}
	}
	if u.CookieConsent != nil {
		if err := p.CookieConsent.Set(ctx, *u.CookieConsent); err != nil {
			return err
		}
	}
	if u.AgentID != nil {
		if err := p.AgentID.Set(ctx, *u.AgentID); err != nil {
			return err
		}
	}
	return nil
}
