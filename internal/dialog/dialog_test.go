package dialog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/gateway/gatewaytest"
	"github.com/tealstack/filefleet/internal/store"
	"github.com/tealstack/filefleet/internal/telemetry"
)

const (
	adminID  = int64(42)
	tenantID = int64(777)
	chatID   = int64(42)
)

func newFixture(t *testing.T, timeout time.Duration) (*Manager, *gatewaytest.FakeSession, *store.Store) {
	t.Helper()
	reg, err := store.Open(filepath.Join(t.TempDir(), "dialog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	require.NoError(t, reg.Upsert(&store.TenantRecord{
		TenantID:   tenantID,
		OwnerID:    adminID,
		Credential: "tok",
		Handle:     "clonebot",
		Active:     true,
		Settings:   store.DefaultSettings(),
	}))

	sess := gatewaytest.NewFakeSession(gateway.BotInfo{ID: tenantID, Username: "clonebot"})
	return NewManager(reg, timeout, telemetry.Component("dialog")), sess, reg
}

func answer(text string) gateway.Message {
	return gateway.Message{
		ID:     5,
		ChatID: chatID,
		From:   gateway.User{ID: adminID},
		Text:   text,
	}
}

func TestPromptAndAnswerWritesSetting(t *testing.T) {
	m, sess, reg := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindAutoDelete))
	require.True(t, m.Pending(adminID))
	require.Len(t, sess.Sent(), 1) // the question

	consumed := m.HandleMessage(ctx, answer("5 min"))
	assert.True(t, consumed)
	assert.False(t, m.Pending(adminID))

	rec, err := reg.Get(tenantID)
	require.NoError(t, err)
	assert.Equal(t, 300, rec.Settings.AutoDeleteSeconds)
	assert.Equal(t, "Saved.", sess.LastSent().Out.Text)
}

func TestGateChannelAnswer(t *testing.T) {
	m, sess, reg := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindGateChannel))
	require.True(t, m.HandleMessage(ctx, answer("-1001234")))

	rec, err := reg.Get(tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234), rec.Settings.GateChannel)
}

func TestCancelKeyword(t *testing.T) {
	m, sess, reg := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindStartMessage))

	msg := answer("/cancel")
	msg.Command = CancelCommand
	require.True(t, m.HandleMessage(ctx, msg))

	assert.False(t, m.Pending(adminID))
	assert.Equal(t, "Cancelled.", sess.LastSent().Out.Text)

	rec, err := reg.Get(tenantID)
	require.NoError(t, err)
	assert.Empty(t, rec.Settings.StartMessage)
}

func TestValidationFailureIsTerminal(t *testing.T) {
	m, sess, reg := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindGateChannel))
	require.True(t, m.HandleMessage(ctx, answer("not a number")))

	// Session is gone; the admin must re-invoke the prompt.
	assert.False(t, m.Pending(adminID))
	assert.False(t, m.HandleMessage(ctx, answer("-100999")))

	rec, err := reg.Get(tenantID)
	require.NoError(t, err)
	assert.Zero(t, rec.Settings.GateChannel)
}

func TestDeadlineEditsPrompt(t *testing.T) {
	m, sess, _ := newFixture(t, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindAutoDelete))
	promptID := sess.Sent()[0].MessageID

	require.Eventually(t, func() bool {
		return !m.Pending(adminID)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(sess.Edits()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, promptID, sess.Edits()[0].MessageID)
	assert.Contains(t, sess.Edits()[0].Text, "Timed out")

	// A late answer after the timeout is not consumed.
	assert.False(t, m.HandleMessage(ctx, answer("5 min")))
}

func TestNewPromptReplacesOld(t *testing.T) {
	m, sess, reg := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindStartMessage))
	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindAutoDelete))

	// The answer resolves the new prompt, not the old one.
	require.True(t, m.HandleMessage(ctx, answer("90s")))
	rec, err := reg.Get(tenantID)
	require.NoError(t, err)
	assert.Equal(t, 90, rec.Settings.AutoDeleteSeconds)
	assert.Empty(t, rec.Settings.StartMessage)

	// The replaced prompt's timer was stopped: no timeout edit appears.
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, sess.Edits())
}

func TestOtherUsersMessagesIgnored(t *testing.T) {
	m, sess, _ := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindAutoDelete))

	other := answer("5 min")
	other.From.ID = 9999
	assert.False(t, m.HandleMessage(ctx, other))
	assert.True(t, m.Pending(adminID))
}

func TestModeratorAnswerAppends(t *testing.T) {
	m, sess, reg := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Prompt(ctx, sess, adminID, tenantID, chatID, KindAddModerator))
	require.True(t, m.HandleMessage(ctx, answer("1001")))

	rec, err := reg.Get(tenantID)
	require.NoError(t, err)
	assert.True(t, rec.Settings.Moderators.Contains(1001))
}
