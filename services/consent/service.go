package consent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/r0mbeg/multibank/models"
)

var (
	// ErrNotFound is returned when a revoke targets a consent the cached
	// list does not contain.
	ErrNotFound = errors.New("consent not found")

	// ErrNotAuthorized is returned when a revoke targets a consent that is
	// still awaiting bank authorization. No backend call is issued.
	ErrNotAuthorized = errors.New("consent is not authorized")

	errStillAwaiting = errors.New("consent still awaiting authorization")
)

const (
	// ReconcileDelay is the grace window between accepting a consent request
	// and the first re-list. Bank-side authorization completes out of band;
	// this is how long the backend usually needs.
	ReconcileDelay = 6 * time.Second

	reconcileAttempts = 5
	reconcileInterval = 2 * time.Second
	reconcileTimeout  = time.Minute
)

// Client is the slice of the request gateway used by the consent manager.
type Client interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	DeleteJSON(ctx context.Context, path string, body, out any) error
}

type consentRequest struct {
	BankCode string `json:"bank_code"`
	ClientID string `json:"client_id"`
}

// Service drives the per-bank consent state machine. Status is backend-
// sourced truth: the local view is only ever overwritten by a full refetch,
// or shrunk when the backend acknowledges a revocation.
//
//	(none) --issue--> AwaitingAuthorization --refetch--> Authorized
//	Authorized --revoke acknowledged--> (removed)
//	any --refetch omits record--> (removed)
type Service struct {
	api        Client
	log        zerolog.Logger
	invalidate func()

	mu       sync.RWMutex
	consents []models.Consent

	timerMu sync.Mutex
	timer   *time.Timer
	closed  bool

	delay    time.Duration
	interval time.Duration
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithInvalidator registers a callback run after a revocation is
// acknowledged, so caches of consent-dependent data (accounts, products)
// are dropped.
func WithInvalidator(invalidate func()) Option {
	return func(s *Service) {
		s.invalidate = invalidate
	}
}

// WithReconcileDelay overrides the grace window (primarily for testing).
func WithReconcileDelay(delay time.Duration) Option {
	return func(s *Service) {
		s.delay = delay
	}
}

// WithReconcileInterval overrides the re-poll interval (primarily for testing).
func WithReconcileInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.interval = interval
	}
}

// NewService creates the consent manager.
func NewService(api Client, opts ...Option) *Service {
	svc := &Service{
		api:      api,
		log:      zerolog.Nop(),
		delay:    ReconcileDelay,
		interval: reconcileInterval,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// List fetches the current consent set and replaces the cached view
// wholesale. Idempotent and safe to call repeatedly.
func (s *Service) List(ctx context.Context) ([]models.Consent, error) {
	var consents []models.Consent
	if err := s.api.GetJSON(ctx, "/consents", &consents); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.consents = consents
	s.mu.Unlock()

	return s.Cached(), nil
}

// Cached returns the local view of the consent set. Derived state —
// recomputable from scratch with List at any time.
func (s *Service) Cached() []models.Consent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Consent, len(s.consents))
	copy(out, s.consents)
	return out
}

// Issue submits a bank-login credential pair. The backend performs the
// bank-side authorization out of band, so this returns as soon as the
// request is accepted; the new consent starts in AwaitingAuthorization.
// A follow-up reconcile is scheduled after the grace window to observe the
// transition to Authorized.
func (s *Service) Issue(ctx context.Context, bankCode, clientID string) error {
	req := consentRequest{BankCode: bankCode, ClientID: clientID}
	if err := s.api.PostJSON(ctx, "/consent", req, nil); err != nil {
		return err
	}

	s.log.Info().Str("bank", bankCode).Str("client", clientID).Msg("consent requested")
	s.scheduleReconcile()
	return nil
}

// Revoke deletes an authorized consent. Confirmed-then-applied: the cached
// entry is removed only after the backend acknowledges, so a failed delete
// leaves the local view intact. Revoking a consent that is still awaiting
// authorization is a precondition violation and issues no backend call.
func (s *Service) Revoke(ctx context.Context, bankCode, consentID string) error {
	target, err := s.find(bankCode, consentID)
	if err != nil {
		return err
	}
	if !target.Authorized() {
		return ErrNotAuthorized
	}

	req := consentRequest{BankCode: target.BankCode, ClientID: target.ClientID}
	if err := s.api.DeleteJSON(ctx, "/consent", req, nil); err != nil {
		return err
	}

	s.mu.Lock()
	kept := s.consents[:0]
	for _, c := range s.consents {
		if c.BankCode != target.BankCode || c.ConsentID != target.ConsentID {
			kept = append(kept, c)
		}
	}
	s.consents = kept
	s.mu.Unlock()

	if s.invalidate != nil {
		s.invalidate()
	}
	s.log.Info().Str("bank", bankCode).Str("consent", consentID).Msg("consent revoked")
	return nil
}

// Close stops any pending reconcile timer. Safe to call more than once.
func (s *Service) Close() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Service) find(bankCode, consentID string) (models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.consents {
		if c.BankCode == bankCode && c.ConsentID == consentID {
			return c, nil
		}
	}
	return models.Consent{}, ErrNotFound
}

// scheduleReconcile arms the follow-up refetch. Rescheduling replaces a
// pending timer; the reconcile itself is idempotent, so a timer firing
// after the caller moved on is harmless.
func (s *Service) scheduleReconcile() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.reconcile)
}

// reconcile refetches the consent set, re-polling a bounded number of times
// while any consent is still awaiting authorization. The bank decides; we
// only observe.
func (s *Service) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	err := retry.Do(
		func() error {
			if _, err := s.List(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			if s.awaiting() > 0 {
				return errStillAwaiting
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(reconcileAttempts),
		retry.Delay(s.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		s.log.Debug().Err(err).Msg("consent reconcile finished without full authorization")
	}
}

func (s *Service) awaiting() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.consents {
		if c.Status == models.ConsentAwaitingAuthorization {
			count++
		}
	}
	return count
}
