package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/models"
	"authd/pkg/lockout"
	"authd/pkg/policy"
	"authd/pkg/revocation"
	"authd/pkg/sessions"
	"authd/pkg/tokens"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type mapVerifier struct {
	passwords map[string]string
	tenants   map[string]string
}

func (v *mapVerifier) Verify(_ context.Context, principal, credential string) (*Identity, error) {
	pw, ok := v.passwords[principal]
	if !ok || pw != credential {
		return nil, ErrInvalidCredentials
	}
	return &Identity{Subject: principal, Tenant: v.tenants[principal], Role: "user"}, nil
}

// testPolicy has the idle timeout disabled so clock jumps inside a test
// exercise exactly the property under test.
func testPolicy() models.SecurityPolicy {
	return models.SecurityPolicy{
		Active:                      true,
		LockoutMaxAttempts:          5,
		LockoutDurationMinutes:      15,
		LockoutType:                 models.LockoutFixed,
		SessionTimeoutMinutes:       0,
		SessionMaxConcurrent:        0,
		SessionAbsoluteTimeoutHours: 48,
	}
}

func newTestAuth(t *testing.T, pol models.SecurityPolicy) (*AuthService, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Now()}
	codec := tokens.NewCodec(tokens.StaticKey([]byte("unit-test-secret-0123456789abcdef"))).WithClock(clk.Now)
	rev := revocation.NewMemoryStore()
	reg := sessions.NewRegistry(sessions.NewMemoryStore()).WithClock(clk.Now)
	trk := lockout.NewTracker(lockout.NewMemoryStore()).WithClock(clk.Now)
	res := policy.NewResolver(&policy.MemoryStore{Policies: []models.SecurityPolicy{pol}})
	require.NoError(t, res.Load(context.Background()))
	verifier := &mapVerifier{passwords: map[string]string{"alice": "correct-horse", "bob": "hunter22"}}
	svc := NewAuthService(codec, rev, reg, trk, res, verifier, 15*time.Minute, 24*time.Hour).WithClock(clk.Now)
	return svc, clk
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, testPolicy())

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	pr, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", pr.ID)
	assert.NotEmpty(t, pr.SessionID)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, testPolicy())

	_, err := svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRequiresRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, testPolicy())

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	access, expiresIn, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(900), expiresIn)
	_, err = svc.Authenticate(ctx, access)
	assert.NoError(t, err)

	// an access token must not pass for a refresh token
	_, _, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	// nor the reverse
	_, err = svc.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, testPolicy())

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken))
	require.NoError(t, svc.Logout(ctx, pair.AccessToken), "second logout must succeed")

	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRevocationHoldsUntilNaturalExpiry(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestAuth(t, testPolicy())

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, pair.AccessToken))

	// rejected at every point up to the token's own expiry (t=0, 5m, 10m)
	for i := 0; i < 3; i++ {
		_, err = svc.Authenticate(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		clk.Advance(5 * time.Minute)
	}
}

func TestExpiryPrecedesRevocationBookkeeping(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestAuth(t, testPolicy())

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	// never logged out, no revocation record; natural expiry alone rejects it
	clk.Advance(16 * time.Minute)
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestAuth(t, testPolicy())

	pairs := make([]*TokenPair, 0, 3)
	for i := 0; i < 3; i++ {
		pair, err := svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		pairs = append(pairs, pair)
		clk.Advance(time.Second)
	}
	other, err := svc.Login(ctx, "bob", "hunter22")
	require.NoError(t, err)

	count, err := svc.LogoutAll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, pair := range pairs {
		_, err := svc.Authenticate(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
	_, err = svc.Authenticate(ctx, other.AccessToken)
	assert.NoError(t, err, "other principals keep their sessions")
}

func TestSessionCapEvictsOldestLogin(t *testing.T) {
	ctx := context.Background()
	pol := testPolicy()
	pol.SessionMaxConcurrent = 3
	svc, clk := newTestAuth(t, pol)

	pairs := make([]*TokenPair, 0, 4)
	for i := 0; i < 4; i++ {
		pair, err := svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		pairs = append(pairs, pair)
		clk.Advance(time.Second)
	}

	_, err := svc.Authenticate(ctx, pairs[0].AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated, "oldest session must be evicted")
	for _, pair := range pairs[1:] {
		_, err := svc.Authenticate(ctx, pair.AccessToken)
		assert.NoError(t, err)
	}
}

func TestLockoutGateScenario(t *testing.T) {
	// max_attempts=3, 15m fixed: failures at t=0,1,2 lock until t=17;
	// a correct password at t=10 is still refused; at t=20 it succeeds.
	ctx := context.Background()
	pol := testPolicy()
	pol.LockoutMaxAttempts = 3
	svc, clk := newTestAuth(t, pol)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		clk.Advance(time.Minute)
	}
	// now at t=3m, locked until t=17m

	clk.Advance(7 * time.Minute) // t=10m
	_, err := svc.Login(ctx, "alice", "correct-horse")
	var locked *AccountLockedError
	require.ErrorAs(t, err, &locked, "lock is unconditional while active")
	assert.Equal(t, clk.Now().Add(7*time.Minute), locked.Until)

	clk.Advance(10 * time.Minute) // t=20m
	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	// and the counter was fully reset by the success
	st, err := svc.lockouts.Check(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, lockout.Open, st.State)
	assert.Equal(t, 0, st.Failures)
}

func TestNearThresholdSuccessResets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, testPolicy()) // max 5

	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	// four more failures still do not lock
	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = svc.Login(ctx, "alice", "correct-horse")
	assert.NoError(t, err)
}

func TestProgressiveLockoutEscalates(t *testing.T) {
	ctx := context.Background()
	pol := testPolicy()
	pol.LockoutMaxAttempts = 3
	pol.LockoutType = models.LockoutProgressive
	svc, clk := newTestAuth(t, pol)

	lockOnce := func() time.Duration {
		for i := 0; i < 3; i++ {
			_, err := svc.Login(ctx, "alice", "wrong")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		}
		_, err := svc.Login(ctx, "alice", "wrong")
		var locked *AccountLockedError
		require.ErrorAs(t, err, &locked)
		return locked.Until.Sub(clk.Now())
	}

	first := lockOnce()
	clk.Advance(first + time.Second)
	second := lockOnce()
	assert.Greater(t, second, first)
}

// failingRevocationStore simulates blacklist storage being down.
type failingRevocationStore struct{}

func (failingRevocationStore) Record(context.Context, string, string, tokens.Kind, time.Time) error {
	return errors.New("store down")
}
func (failingRevocationStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}
func (failingRevocationStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("store down")
}

func TestAuthenticateFailsClosedWhenStoreDown(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, testPolicy())

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	svc.revoked = failingRevocationStore{}
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated, "a down blacklist must reject, not admit")
}

func TestIdleTimeoutEndsSession(t *testing.T) {
	ctx := context.Background()
	pol := testPolicy()
	pol.SessionTimeoutMinutes = 30
	svc, clk := newTestAuth(t, pol)

	pair, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	// activity keeps the session alive across the idle window
	clk.Advance(14 * time.Minute)
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	// going quiet for longer than the idle timeout kills it even though the
	// refresh token itself is still unexpired
	clk.Advance(31 * time.Minute)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
