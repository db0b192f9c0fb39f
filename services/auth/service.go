package auth

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/r0mbeg/multibank/models"
)

// SessionStore is the slice of the session store the auth flows mutate.
type SessionStore interface {
	Login(token string, expiresIn int64, user *models.User)
	SetUser(user models.User) error
	Logout()
	Valid() bool
	User() *models.User
}

// Client is the slice of the request gateway used by the auth flows.
type Client interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
}

// TokenResponse is the backend's reply to login and registration.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Patronymic string `json:"patronymic"`
	BirthDate  string `json:"birthdate"` // YYYY-MM-DD
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service orchestrates login, registration and profile enrichment over the
// gateway and the session store. Failures are returned untouched and never
// retried.
type Service struct {
	api   Client
	store SessionStore
	log   zerolog.Logger
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates the auth service.
func NewService(api Client, store SessionStore, opts ...Option) *Service {
	svc := &Service{
		api:   api,
		store: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Login exchanges credentials for a bearer token and stores it, then fetches
// the profile. Profile enrichment is best effort: the token is already
// usable, so a failed /me fetch does not fail the login — the profile can be
// refetched later.
func (s *Service) Login(ctx context.Context, email, password string) error {
	var token TokenResponse
	if err := s.api.PostJSON(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &token); err != nil {
		return err
	}

	s.store.Login(token.AccessToken, token.ExpiresIn, nil)

	if err := s.FetchProfile(ctx); err != nil {
		s.log.Warn().Err(err).Msg("profile fetch after login failed")
	}
	return nil
}

// Register creates an account; a successful registration behaves like a
// login (token stored, profile fetched).
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	var token TokenResponse
	if err := s.api.PostJSON(ctx, "/auth/register", in, &token); err != nil {
		return err
	}

	s.store.Login(token.AccessToken, token.ExpiresIn, nil)

	if err := s.FetchProfile(ctx); err != nil {
		s.log.Warn().Err(err).Msg("profile fetch after registration failed")
	}
	return nil
}

// FetchProfile loads /me and merges it into the session.
func (s *Service) FetchProfile(ctx context.Context) error {
	var profile models.Profile
	if err := s.api.GetJSON(ctx, "/me", &profile); err != nil {
		return err
	}
	return s.store.SetUser(profile.ToUser())
}

// Logout clears the session.
func (s *Service) Logout() {
	s.store.Logout()
}
