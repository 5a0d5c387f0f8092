package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time                { return c.t }
func (c *fakeClock) Advance(d time.Duration)       { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock                     { return &fakeClock{t: time.Now().Truncate(time.Second)} }
func newTestCodec(clk *fakeClock, secret string) *Codec {
	return NewCodec(StaticKey([]byte(secret))).WithClock(clk.Now)
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	clk := newFakeClock()
	c := newTestCodec(clk, "test-secret-0123456789abcdef")

	signed, claims, err := c.Issue("alice", "acme", "sess-1", "user", KindAccess, 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	require.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))

	got, err := c.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Subject)
	assert.Equal(t, "acme", got.Tenant)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "user", got.Role)
	assert.Equal(t, KindAccess, got.Kind)
	assert.Equal(t, claims.ID, got.ID)
}

func TestUniqueJTIs(t *testing.T) {
	clk := newFakeClock()
	c := newTestCodec(clk, "test-secret-0123456789abcdef")
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, claims, err := c.Issue("alice", "", "", "", KindAccess, time.Minute)
		require.NoError(t, err)
		require.False(t, seen[claims.ID], "duplicate jti %s", claims.ID)
		seen[claims.ID] = true
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	clk := newFakeClock()
	issuer := newTestCodec(clk, "test-secret-0123456789abcdef")
	verifier := newTestCodec(clk, "another-secret-0123456789abc")

	signed, _, err := issuer.Issue("alice", "", "", "", KindAccess, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Decode(signed)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestDecodeRejectsExpired(t *testing.T) {
	clk := newFakeClock()
	c := newTestCodec(clk, "test-secret-0123456789abcdef")

	signed, _, err := c.Issue("alice", "", "", "", KindAccess, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = c.Decode(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	clk := newFakeClock()
	c := newTestCodec(clk, "test-secret-0123456789abcdef")

	for _, in := range []string{"", "not-a-token", "a.b.c"} {
		_, err := c.Decode(in)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}
