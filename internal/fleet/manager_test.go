package fleet

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/gateway/gatewaytest"
	"github.com/tealstack/filefleet/internal/store"
)

func noopFactory(s *Session) UpdateHandler {
	return func(ctx context.Context, upd gateway.Update) {}
}

func newFixture(t *testing.T, opts ...Option) (*Manager, *gatewaytest.Fake, *store.Store) {
	t.Helper()
	reg, err := store.Open(filepath.Join(t.TempDir(), "fleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	gw := gatewaytest.NewFake()
	m := NewManager(gw, reg, noopFactory, opts...)
	t.Cleanup(m.Shutdown)
	return m, gw, reg
}

func TestRegisterAndStart(t *testing.T) {
	m, gw, reg := newFixture(t)
	gw.Allow("12345:ABCtoken", gateway.BotInfo{ID: 900, Username: "clone900", DisplayName: "Clone"})

	rec, err := m.RegisterAndStart(context.Background(), "12345:ABCtoken", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(900), rec.TenantID)
	assert.Equal(t, int64(42), rec.OwnerID)
	assert.True(t, rec.Active)
	assert.Equal(t, 0, rec.Settings.AutoDeleteSeconds)
	assert.True(t, m.Running(900))

	stored, err := reg.Get(900)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "clone900", stored.Handle)
}

func TestRegisterInvalidCredential(t *testing.T) {
	m, _, reg := newFixture(t)

	_, err := m.RegisterAndStart(context.Background(), "bogus", 42)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	recs, err := reg.ListActive()
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, m.ActiveCount())
}

func TestRegisterDuplicate(t *testing.T) {
	m, gw, reg := newFixture(t)
	gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "clone900"})

	_, err := m.RegisterAndStart(context.Background(), "tok", 42)
	require.NoError(t, err)

	_, err = m.RegisterAndStart(context.Background(), "tok", 43)
	assert.ErrorIs(t, err, ErrDuplicateTenant)

	recs, err := reg.ListByOwner(42)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestStopIsIdempotent(t *testing.T) {
	m, gw, _ := newFixture(t)
	gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "clone900"})

	_, err := m.RegisterAndStart(context.Background(), "tok", 42)
	require.NoError(t, err)

	m.Stop(900)
	assert.False(t, m.Running(900))
	m.Stop(900) // no-op
	m.Stop(12345)
}

func TestDeleteRequiresOwner(t *testing.T) {
	m, gw, reg := newFixture(t, WithElevated([]int64{1}))
	gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "clone900"})

	_, err := m.RegisterAndStart(context.Background(), "tok", 42)
	require.NoError(t, err)

	err = m.Delete(context.Background(), 900, 99)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, m.Running(900))

	// Elevated admin may delete anyone's clone.
	require.NoError(t, m.Delete(context.Background(), 900, 1))
	assert.False(t, m.Running(900))

	rec, err := reg.Get(900)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteByOwner(t *testing.T) {
	m, gw, reg := newFixture(t)
	gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "clone900"})

	_, err := m.RegisterAndStart(context.Background(), "tok", 42)
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), 900, 42))
	assert.False(t, m.Running(900))

	rec, err := reg.Get(900)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRestartAllIsolatesFailures(t *testing.T) {
	m, gw, reg := newFixture(t)
	gw.Allow("tok-a", gateway.BotInfo{ID: 901, Username: "a"})
	gw.Allow("tok-b", gateway.BotInfo{ID: 902, Username: "b"})
	gw.Allow("tok-c", gateway.BotInfo{ID: 903, Username: "c"})

	for _, tok := range []string{"tok-a", "tok-b", "tok-c"} {
		_, err := m.RegisterAndStart(context.Background(), tok, 42)
		require.NoError(t, err)
	}
	for id := int64(901); id <= 903; id++ {
		m.Stop(id)
	}
	require.Zero(t, m.ActiveCount())

	// One credential gets revoked while the process is down.
	gw.Revoke("tok-b")

	started, failed := m.RestartAll(context.Background())
	assert.Equal(t, 2, started)
	assert.Equal(t, 1, failed)
	assert.True(t, m.Running(901))
	assert.False(t, m.Running(902))
	assert.True(t, m.Running(903))

	// The failed tenant's record is untouched.
	rec, err := reg.Get(902)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Active)
}

func TestConcurrentRegisterConvergesToOneSession(t *testing.T) {
	m, gw, reg := newFixture(t)
	gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "clone900"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RegisterAndStart(context.Background(), "tok", 42)
			if err != nil {
				assert.ErrorIs(t, err, ErrDuplicateTenant)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.ActiveCount())
	recs, err := reg.ListByOwner(42)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
