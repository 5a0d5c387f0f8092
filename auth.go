package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"authd/models"
	"authd/pkg/lockout"
	"authd/pkg/policy"
	"authd/pkg/revocation"
	"authd/pkg/sessions"
	"authd/pkg/tokens"
)

var (
	// ErrInvalidCredentials covers unknown principals and wrong credentials
	// alike; the two are never distinguished to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is the single outcome for every token-validation
	// failure: malformed, bad signature, expired, revoked, or dead session.
	// The split exists only in server-side logs.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnavailable marks a storage failure during login; the client may
	// retry. Validation paths never return it: they fail closed instead.
	ErrUnavailable = errors.New("authentication backend unavailable")
)

// AccountLockedError refuses a login while a lockout is active, regardless of
// credential correctness.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// Identity is what a successful credential check yields.
type Identity struct {
	Subject string
	Tenant  string
	Role    string
}

// Verifier is the external credential-check primitive. Implementations
// return ErrInvalidCredentials for unknown principals and wrong credentials.
type Verifier interface {
	Verify(ctx context.Context, principal, credential string) (*Identity, error)
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	ID        string
	Tenant    string
	Role      string
	SessionID string
	TokenID   string
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds until the access token expires
}

// AuthService orchestrates credential verification, token issuance and the
// per-request validation pipeline (codec -> blacklist -> session).
type AuthService struct {
	codec    *tokens.Codec
	revoked  revocation.Store
	sessions *sessions.Registry
	lockouts *lockout.Tracker
	policies *policy.Resolver
	verifier Verifier

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthService(codec *tokens.Codec, rev revocation.Store, reg *sessions.Registry, trk *lockout.Tracker, res *policy.Resolver, v Verifier, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		codec:      codec,
		revoked:    rev,
		sessions:   reg,
		lockouts:   trk,
		policies:   res,
		verifier:   v,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func lockoutPolicy(p models.SecurityPolicy) lockout.Policy {
	typ := lockout.TypeFixed
	if p.LockoutType == models.LockoutProgressive {
		typ = lockout.TypeProgressive
	}
	return lockout.Policy{
		MaxAttempts:  p.LockoutMaxAttempts,
		BaseDuration: p.LockoutDuration(),
		Type:         typ,
	}
}

// Login checks the lockout gate before touching credentials: a locked account
// is refused outright, so no hashing cost is paid for it. Lockout state is
// keyed by the submitted principal name, which also covers attempts against
// principals that do not exist.
func (s *AuthService) Login(ctx context.Context, principal, credential string) (*TokenPair, error) {
	st, err := s.lockouts.Check(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("%w: lockout check: %v", ErrUnavailable, err)
	}
	if st.State == lockout.Locked {
		return nil, &AccountLockedError{Until: st.LockedUntil}
	}

	ident, err := s.verifier.Verify(ctx, principal, credential)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// tenant is unknown on the failure path, so the system-default
			// lockout rules apply
			lp := lockoutPolicy(s.policies.Resolve(""))
			if _, ferr := s.lockouts.OnFailure(ctx, principal, lp); ferr != nil {
				log.Printf("[AUTH] recording failed attempt for %q: %v", principal, ferr)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: credential check: %v", ErrUnavailable, err)
	}

	if err := s.lockouts.OnSuccess(ctx, principal); err != nil {
		log.Printf("[AUTH] clearing lockout state for %q: %v", principal, err)
	}

	pol := s.policies.Resolve(ident.Tenant)
	sid := uuid.NewString()
	access, _, err := s.codec.Issue(ident.Subject, ident.Tenant, sid, ident.Role, tokens.KindAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: issuing access token: %v", ErrUnavailable, err)
	}
	refresh, rc, err := s.codec.Issue(ident.Subject, ident.Tenant, sid, ident.Role, tokens.KindRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: issuing refresh token: %v", ErrUnavailable, err)
	}
	if _, err := s.sessions.Open(ctx, ident.Subject, sid, rc.ID, pol.AbsoluteTimeout(), pol.SessionMaxConcurrent); err != nil {
		return nil, fmt.Errorf("%w: opening session: %v", ErrUnavailable, err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Authenticate is the hot path run on every protected request: decode and
// verify the signature, check the blacklist, check the session. One keyed
// lookup per store, no joins.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := s.validate(ctx, bearer, tokens.KindAccess)
	if err != nil {
		return nil, err
	}
	return &Principal{
		ID:        claims.Subject,
		Tenant:    claims.Tenant,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.validate(ctx, refreshToken, tokens.KindRefresh)
	if err != nil {
		return "", 0, err
	}
	access, _, err := s.codec.Issue(claims.Subject, claims.Tenant, claims.SessionID, claims.Role, tokens.KindAccess, s.accessTTL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: issuing access token: %v", ErrUnavailable, err)
	}
	return access, int64(s.accessTTL.Seconds()), nil
}

// Logout blacklists the presented token and revokes its session. Idempotent:
// a second logout with the same token finds the blacklist insert a no-op and
// the session already revoked, and still succeeds.
func (s *AuthService) Logout(ctx context.Context, bearer string) error {
	claims, err := s.codec.Decode(bearer)
	if err != nil {
		log.Printf("[AUTH] logout with undecodable token: %v", err)
		return ErrUnauthenticated
	}
	if err := s.revoked.Record(ctx, claims.ID, claims.Subject, claims.Kind, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("%w: recording revocation: %v", ErrUnavailable, err)
	}
	if claims.SessionID != "" {
		if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil {
			return fmt.Errorf("%w: revoking session: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// LogoutAll terminates every active session for the principal and blacklists
// the refresh tokens they were opened with. Returns how many sessions were
// revoked.
func (s *AuthService) LogoutAll(ctx context.Context, principalID string) (int, error) {
	rows, err := s.sessions.RevokeAll(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("%w: revoking sessions: %v", ErrUnavailable, err)
	}
	for _, sess := range rows {
		if err := s.revoked.Record(ctx, sess.JTI, principalID, tokens.KindRefresh, sess.ExpiresAt); err != nil {
			return 0, fmt.Errorf("%w: recording revocation: %v", ErrUnavailable, err)
		}
	}
	return len(rows), nil
}

// validate runs the decode -> blacklist -> session pipeline. Every failure,
// storage unavailability included, collapses to ErrUnauthenticated: better to
// reject a valid session than admit a revoked one.
func (s *AuthService) validate(ctx context.Context, bearer string, kind tokens.Kind) (*tokens.Claims, error) {
	claims, err := s.codec.Decode(bearer)
	if err != nil {
		log.Printf("[AUTH] token rejected: %v", err)
		return nil, ErrUnauthenticated
	}
	if claims.Kind != kind {
		log.Printf("[AUTH] token rejected: %v (got %s, want %s)", tokens.ErrWrongKind, claims.Kind, kind)
		return nil, ErrUnauthenticated
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Printf("[AUTH] revocation store unavailable, failing closed: %v", err)
		return nil, ErrUnauthenticated
	}
	if revoked {
		log.Printf("[AUTH] token rejected: jti %s revoked", claims.ID)
		return nil, ErrUnauthenticated
	}
	pol := s.policies.Resolve(claims.Tenant)
	ok, err := s.sessions.IsValid(ctx, claims.SessionID, pol.IdleTimeout())
	if err != nil {
		log.Printf("[AUTH] session registry unavailable, failing closed: %v", err)
		return nil, ErrUnauthenticated
	}
	if !ok {
		log.Printf("[AUTH] token rejected: session %s invalid", claims.SessionID)
		return nil, ErrUnauthenticated
	}
	if err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		log.Printf("[AUTH] touching session %s: %v", claims.SessionID, err)
	}
	return claims, nil
}

// dbVerifier checks credentials against the users table with bcrypt.
type dbVerifier struct {
	db *gorm.DB
}

func (v *dbVerifier) Verify(ctx context.Context, principal, credential string) (*Identity, error) {
	principal = strings.TrimSpace(principal)
	var user models.User
	if err := v.db.WithContext(ctx).Where("username = ?", principal).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}
	tenant := ""
	if user.TenantID != nil {
		tenant = *user.TenantID
	}
	return &Identity{Subject: user.Username, Tenant: tenant, Role: user.Role}, nil
}

// RegisterUser creates an account, applying the password rules of the
// resolved policy. Uniqueness is pre-checked optimistically and re-checked on
// the insert error for the race.
func RegisterUser(username, password string, tenantID *string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username required")
	}
	tenant := ""
	if tenantID != nil {
		tenant = *tenantID
	}
	pol := policyResolver.Resolve(tenant)
	if err := checkPasswordRules(password, pol); err != nil {
		return err
	}
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return fmt.Errorf("user already exists")
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := models.User{Username: username, HashedPassword: hashedPassword, TenantID: tenantID, Role: "user"}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) { // race condition after initial check
			return fmt.Errorf("user already exists")
		}
		return err
	}
	return nil
}

func checkPasswordRules(password string, pol models.SecurityPolicy) error {
	if len(password) < pol.PasswordMinLength {
		return fmt.Errorf("password too short (min %d)", pol.PasswordMinLength)
	}
	if pol.PasswordRequireMixed {
		var hasUpper, hasLower, hasDigit bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			}
		}
		if !hasUpper || !hasLower || !hasDigit {
			return fmt.Errorf("password must mix upper case, lower case and digits")
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
