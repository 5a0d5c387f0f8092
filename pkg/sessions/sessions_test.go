package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry() (*Registry, *fakeClock) {
	clk := &fakeClock{t: time.Now()}
	return NewRegistry(NewMemoryStore()).WithClock(clk.Now), clk
}

func TestOpenAndValidate(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	sess, err := reg.Open(ctx, "alice", "", "jti-1", 12*time.Hour, 0)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	ok, err := reg.IsValid(ctx, sess.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnknownSessionInvalid(t *testing.T) {
	reg, _ := newTestRegistry()
	ok, err := reg.IsValid(context.Background(), "nope", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCapEvictsOldestFIFO(t *testing.T) {
	ctx := context.Background()
	reg, clk := newTestRegistry()

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		sess, err := reg.Open(ctx, "alice", "", "jti", 12*time.Hour, 3)
		require.NoError(t, err)
		ids = append(ids, sess.ID)
		clk.Advance(time.Second)
	}

	// exactly the oldest is out, the three newest stay valid
	ok, err := reg.IsValid(ctx, ids[0], 0)
	require.NoError(t, err)
	assert.False(t, ok, "oldest session must be evicted")
	for _, id := range ids[1:] {
		ok, err := reg.IsValid(ctx, id, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	active, err := reg.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestUnlimitedWhenCapZero(t *testing.T) {
	ctx := context.Background()
	reg, clk := newTestRegistry()

	for i := 0; i < 10; i++ {
		_, err := reg.Open(ctx, "alice", "", "jti", 12*time.Hour, 0)
		require.NoError(t, err)
		clk.Advance(time.Second)
	}
	active, err := reg.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, active, 10)
}

func TestIdleTimeout(t *testing.T) {
	ctx := context.Background()
	reg, clk := newTestRegistry()

	sess, err := reg.Open(ctx, "alice", "", "jti-1", 12*time.Hour, 0)
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	ok, err := reg.IsValid(ctx, sess.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "idle session must be invalid")

	// zero disables the idle check
	ok, err = reg.IsValid(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	ctx := context.Background()
	reg, clk := newTestRegistry()

	sess, err := reg.Open(ctx, "alice", "", "jti-1", 12*time.Hour, 0)
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)
	require.NoError(t, reg.Touch(ctx, sess.ID))
	clk.Advance(20 * time.Minute)

	ok, err := reg.IsValid(ctx, sess.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAbsoluteCapOverridesActivity(t *testing.T) {
	ctx := context.Background()
	reg, clk := newTestRegistry()

	sess, err := reg.Open(ctx, "alice", "", "jti-1", time.Hour, 0)
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	require.NoError(t, reg.Touch(ctx, sess.ID))
	clk.Advance(31 * time.Minute)

	ok, err := reg.IsValid(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok, "session past its absolute cap must be invalid")
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	sess, err := reg.Open(ctx, "alice", "", "jti-1", time.Hour, 0)
	require.NoError(t, err)

	require.NoError(t, reg.Revoke(ctx, sess.ID))
	require.NoError(t, reg.Revoke(ctx, sess.ID))
	require.NoError(t, reg.Revoke(ctx, "never-existed"))

	ok, err := reg.IsValid(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAllReturnsJTIs(t *testing.T) {
	ctx := context.Background()
	reg, clk := newTestRegistry()

	jtis := []string{"jti-a", "jti-b", "jti-c"}
	for _, jti := range jtis {
		_, err := reg.Open(ctx, "alice", "", jti, time.Hour, 0)
		require.NoError(t, err)
		clk.Advance(time.Second)
	}
	_, err := reg.Open(ctx, "bob", "", "jti-bob", time.Hour, 0)
	require.NoError(t, err)

	revoked, err := reg.RevokeAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, revoked, 3)
	got := make([]string, len(revoked))
	for i, s := range revoked {
		got[i] = s.JTI
	}
	assert.Equal(t, jtis, got)

	active, err := reg.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, active)

	// other principals untouched
	active, err = reg.List(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
