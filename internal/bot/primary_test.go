package bot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealstack/filefleet/internal/dialog"
	"github.com/tealstack/filefleet/internal/ephemeral"
	"github.com/tealstack/filefleet/internal/fleet"
	"github.com/tealstack/filefleet/internal/gate"
	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/gateway/gatewaytest"
	"github.com/tealstack/filefleet/internal/store"
	"github.com/tealstack/filefleet/internal/telemetry"
	"github.com/tealstack/filefleet/internal/token"
)

type primaryFixture struct {
	reg     *store.Store
	gw      *gatewaytest.Fake
	mgr     *fleet.Manager
	primary *Primary
	sess    *gatewaytest.FakeSession // the primary bot's session
}

func newPrimaryFixture(t *testing.T) *primaryFixture {
	t.Helper()
	reg, err := store.Open(filepath.Join(t.TempDir(), "primary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	deps := Deps{
		Store:         reg,
		Gate:          gate.New(telemetry.Component("gate")),
		Dialogs:       dialog.NewManager(reg, time.Minute, telemetry.Component("dialog")),
		Ephemeral:     ephemeral.New(telemetry.Component("ephemeral")),
		StorageChatID: storageChat,
		LinkHost:      "t.me",
		Log:           telemetry.Component("bot"),
	}

	gw := gatewaytest.NewFake()
	gw.Allow("primary-tok", gateway.BotInfo{ID: 1, Username: "filefleetbot", DisplayName: "FileFleet"})

	mgr := fleet.NewManager(gw, reg, NewCloneFactory(deps), fleet.WithElevated([]int64{ownerID}))
	t.Cleanup(mgr.Shutdown)

	p := NewPrimary(deps, mgr, []int64{ownerID})
	require.NoError(t, p.Start(context.Background(), gw, "primary-tok"))
	t.Cleanup(p.Stop)

	return &primaryFixture{reg: reg, gw: gw, mgr: mgr, primary: p, sess: gw.Sessions[0]}
}

func (f *primaryFixture) lastText() string {
	if s := f.sess.LastSent(); s != nil {
		return s.Out.Text
	}
	return ""
}

func TestPrimaryRejectsBadToken(t *testing.T) {
	f := newPrimaryFixture(t)
	f.sess.InjectMessage(msgFrom(endUserID, "/add bad-token"))

	require.Eventually(t, func() bool {
		return len(f.sess.Sent()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.lastText(), "rejected")
	assert.Zero(t, f.mgr.ActiveCount())
}

func TestPrimaryAddClone(t *testing.T) {
	f := newPrimaryFixture(t)
	f.gw.Allow("12345:ABCtoken", gateway.BotInfo{ID: 900, Username: "myclone"})

	f.sess.InjectMessage(msgFrom(endUserID, "/add 12345:ABCtoken"))

	require.Eventually(t, func() bool {
		return f.mgr.Running(900)
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(f.sess.Sent()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.lastText(), "@myclone")

	rec, err := f.reg.Get(900)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, endUserID, rec.OwnerID)
	assert.True(t, rec.Active)
}

func TestPrimaryAddDuplicate(t *testing.T) {
	f := newPrimaryFixture(t)
	f.gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "myclone"})

	f.sess.InjectMessage(msgFrom(endUserID, "/add tok"))
	require.Eventually(t, func() bool {
		return f.mgr.Running(900)
	}, time.Second, 5*time.Millisecond)

	f.sess.InjectMessage(msgFrom(endUserID, "/add tok"))
	require.Eventually(t, func() bool {
		return len(f.sess.Sent()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.lastText(), "already registered")
}

func TestPrimaryDeleteOwnership(t *testing.T) {
	f := newPrimaryFixture(t)
	f.gw.Allow("tok", gateway.BotInfo{ID: 900, Username: "myclone"})

	f.sess.InjectMessage(msgFrom(endUserID, "/add tok"))
	require.Eventually(t, func() bool {
		return f.mgr.Running(900)
	}, time.Second, 5*time.Millisecond)

	// Someone else cannot delete it.
	f.sess.InjectMessage(msgFrom(7777, "/delete 900"))
	require.Eventually(t, func() bool {
		return len(f.sess.Sent()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.lastText(), "not yours")
	assert.True(t, f.mgr.Running(900))

	// The owner can.
	f.sess.InjectMessage(msgFrom(endUserID, "/delete 900"))
	require.Eventually(t, func() bool {
		return !f.mgr.Running(900)
	}, time.Second, 5*time.Millisecond)

	rec, err := f.reg.Get(900)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPrimaryServesContent(t *testing.T) {
	f := newPrimaryFixture(t)
	f.sess.InjectMessage(msgFrom(endUserID, "/start "+token.Encode(987)))

	require.Eventually(t, func() bool {
		return len(f.sess.Copies()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, storageChat, f.sess.Copies()[0].FromChatID)
	assert.Equal(t, 987, f.sess.Copies()[0].MessageID)
}

func TestPrimaryBroadcast(t *testing.T) {
	f := newPrimaryFixture(t)
	require.NoError(t, f.reg.TouchUser(0, 5))
	require.NoError(t, f.reg.TouchUser(0, 6))

	f.sess.InjectMessage(msgFrom(ownerID, "/broadcast hello everyone"))

	// Confirmation plus one message per recipient (the sender joins the
	// population on first contact).
	require.Eventually(t, func() bool {
		return len(f.sess.Sent()) == 4
	}, time.Second, 5*time.Millisecond)

	texts := map[int64]string{}
	for _, sent := range f.sess.Sent()[1:] {
		texts[sent.ChatID] = sent.Out.Text
	}
	assert.Equal(t, "hello everyone", texts[5])
	assert.Equal(t, "hello everyone", texts[6])
}

func TestPrimaryBroadcastOwnerOnly(t *testing.T) {
	f := newPrimaryFixture(t)
	f.sess.InjectMessage(msgFrom(endUserID, "/broadcast spam"))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.sess.Sent())
}
