package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service composes the credential store, the token codec and the
// refresh-token rules into the public authentication flows. Each call is
// independent; consistency across concurrent requests is delegated to the
// store's transactional update.
type Service struct {
	store      UserStore
	codec      *Codec
	refreshTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceConfig collects the service dependencies.
type ServiceConfig struct {
	Store      UserStore
	Codec      *Codec
	RefreshTTL time.Duration
	Logger     *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      cfg.Store,
		codec:      cfg.Codec,
		refreshTTL: cfg.RefreshTTL,
		logger:     cfg.Logger,
		now:        now,
	}
}

// IssueOnLogin validates credentials and, on success, returns a fresh access
// token and refresh token. Expected failures come back as *Error values;
// anything else is an infrastructure fault.
func (s *Service) IssueOnLogin(ctx context.Context, email, password string) (*AuthResponse, error) {
	status, err := s.store.ValidateCredentials(ctx, email, password, true)
	if err != nil {
		return nil, fmt.Errorf("auth: validate credentials: %w", err)
	}
	if err := credentialError(status); err != nil {
		return nil, err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth: find user by email: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	roles, permissions, err := s.store.RolesAndPermissions(ctx, user.ID)
	if err != nil {
		s.warn("roles lookup failed", user.ID, err)
		return nil, ErrRolesFetchFailed
	}

	return s.issuePair(ctx, user, roles, permissions)
}

// RotateOnRefresh exchanges a refresh token for a new token pair, revoking
// the presented one. A revoked or expired refresh token presented again fails
// and never re-activates; this is the replay defense point. The access token
// may be expired, but its signature, issuer and audience must hold.
func (s *Service) RotateOnRefresh(ctx context.Context, accessToken, refreshToken string) (*AuthResponse, error) {
	user, stored, err := s.resolveRefreshToken(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}

	stored.Revoke(s.now())

	// Authorization may have changed since login; resolve fresh, never from
	// a cache.
	roles, permissions, err := s.store.RolesAndPermissions(ctx, user.ID)
	if err != nil {
		s.warn("roles lookup failed", user.ID, err)
		return nil, ErrRolesFetchFailed
	}

	// issuePair appends the replacement token, so the revocation above and
	// the insertion land in the same Update call.
	return s.issuePair(ctx, user, roles, permissions)
}

// RevokeOnLogout revokes the presented refresh token. Revoking an already
// revoked token is rejected the same way as an unknown one.
func (s *Service) RevokeOnLogout(ctx context.Context, accessToken, refreshToken string) error {
	user, stored, err := s.resolveRefreshToken(ctx, accessToken, refreshToken)
	if err != nil {
		return err
	}

	stored.Revoke(s.now())
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}
	return nil
}

// RegisterRequest carries the fields needed to create an account.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// emailChecker is an optional store capability for a cheap pre-check before
// the insert. Create still rejects duplicates; the check only improves the
// common-case error message.
type emailChecker interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// Register creates a new user. The store rejects duplicate email.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if checker, ok := s.store.(emailChecker); ok {
		exists, err := checker.EmailExists(ctx, req.Email)
		if err != nil {
			return nil, fmt.Errorf("auth: email pre-check: %w", err)
		}
		if exists {
			return nil, CreationFailed("Email already registered")
		}
	}

	user := &User{
		Email:     NormalizeEmail(req.Email),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := s.store.Create(ctx, user, req.Password); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) resolveRefreshToken(ctx context.Context, accessToken, refreshToken string) (*User, *RefreshToken, error) {
	subject, ok := s.codec.Verify(accessToken)
	if !ok {
		return nil, nil, ErrInvalidToken
	}

	user, err := s.store.FindByID(ctx, subject)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: find user by id: %w", err)
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}

	stored := findRefreshToken(user, refreshToken)
	if stored == nil || !stored.Active(s.now()) {
		return nil, nil, ErrInvalidRefreshToken
	}
	return user, stored, nil
}

// issuePair mints an access token, appends a fresh refresh token to the
// user's collection and persists the whole user in one Update call.
func (s *Service) issuePair(ctx context.Context, user *User, roles, permissions []string) (*AuthResponse, error) {
	accessToken, expiresIn, err := s.codec.Issue(user, roles, permissions)
	if err != nil {
		return nil, err
	}

	secret, err := NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("auth: generate refresh secret: %w", err)
	}

	now := s.now()
	refresh := RefreshToken{
		Token:     secret,
		CreatedOn: now,
		ExpiresOn: now.Add(s.refreshTTL),
	}
	user.RefreshTokens = append(user.RefreshTokens, refresh)

	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	return &AuthResponse{
		UserID:                user.ID,
		Email:                 user.Email,
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		AccessToken:           accessToken,
		ExpiresIn:             expiresIn,
		RefreshToken:          secret,
		RefreshTokenExpiresAt: refresh.ExpiresOn,
	}, nil
}

func (s *Service) warn(msg, userID string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.String("user_id", userID), slog.Any("error", err))
	}
}

func findRefreshToken(user *User, secret string) *RefreshToken {
	for i := range user.RefreshTokens {
		if user.RefreshTokens[i].Token == secret {
			return &user.RefreshTokens[i]
		}
	}
	return nil
}

func credentialError(status CredentialStatus) error {
	switch status {
	case CredentialOK:
		return nil
	case CredentialDisabled:
		return ErrDisabledUser
	case CredentialEmailNotConfirmed:
		return ErrEmailNotConfirmed
	case CredentialLocked:
		return ErrLockedUser
	default:
		return ErrInvalidCredentials
	}
}
