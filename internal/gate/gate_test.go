package gate

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/gateway/gatewaytest"
	"github.com/tealstack/filefleet/internal/store"
	"github.com/tealstack/filefleet/internal/telemetry"
)

func tenant(gateChannel int64) *store.TenantRecord {
	return &store.TenantRecord{
		TenantID: 777,
		Settings: store.Settings{GateChannel: gateChannel},
	}
}

func session() *gatewaytest.FakeSession {
	return gatewaytest.NewFakeSession(gateway.BotInfo{ID: 777, Username: "clonebot"})
}

func TestNoGateChannelAlwaysAllows(t *testing.T) {
	g := New(telemetry.Component("gate"))
	sess := session()
	sess.MembershipFn = func(channelID, userID int64) (gateway.MemberStatus, error) {
		t.Fatal("membership must not be queried without a gate channel")
		return "", nil
	}

	d := g.Check(context.Background(), sess, tenant(0), 5)
	assert.True(t, d.Allowed)
}

func TestMemberStatusesAllowed(t *testing.T) {
	for _, status := range []gateway.MemberStatus{
		gateway.StatusMember, gateway.StatusAdministrator, gateway.StatusCreator,
	} {
		g := New(telemetry.Component("gate"))
		sess := session()
		sess.MembershipFn = func(channelID, userID int64) (gateway.MemberStatus, error) {
			return status, nil
		}
		d := g.Check(context.Background(), sess, tenant(-100500), 5)
		assert.True(t, d.Allowed, "status %s", status)
	}
}

func TestLeftAndKickedDenied(t *testing.T) {
	for _, status := range []gateway.MemberStatus{gateway.StatusLeft, gateway.StatusKicked} {
		g := New(telemetry.Component("gate"))
		sess := session()
		sess.MembershipFn = func(channelID, userID int64) (gateway.MemberStatus, error) {
			return status, nil
		}
		d := g.Check(context.Background(), sess, tenant(-100500), 5)
		assert.False(t, d.Allowed, "status %s", status)
		assert.Equal(t, int64(-100500), d.ChannelID)
		assert.NotEmpty(t, d.InviteLink)
	}
}

func TestNotParticipantDenied(t *testing.T) {
	g := New(telemetry.Component("gate"))
	sess := session()
	sess.MembershipFn = func(channelID, userID int64) (gateway.MemberStatus, error) {
		return "", gateway.NewError(gateway.CodeNotParticipant, "user not in channel", nil)
	}
	d := g.Check(context.Background(), sess, tenant(-100500), 5)
	assert.False(t, d.Allowed)
}

func TestTransientFailureFailsOpen(t *testing.T) {
	g := New(telemetry.Component("gate"))
	sess := session()
	sess.MembershipFn = func(channelID, userID int64) (gateway.MemberStatus, error) {
		return "", gateway.NewError(gateway.CodeUnavailable, "timeout", nil)
	}
	d := g.Check(context.Background(), sess, tenant(-100500), 5)
	assert.True(t, d.Allowed)
}

func TestInviteLinkCached(t *testing.T) {
	g := New(telemetry.Component("gate"))
	sess := session()
	sess.MembershipFn = func(channelID, userID int64) (gateway.MemberStatus, error) {
		return gateway.StatusLeft, nil
	}
	var calls int32
	sess.InviteLinkFn = func(channelID int64) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "https://invite.example/xyz", nil
	}

	for i := 0; i < 3; i++ {
		d := g.Check(context.Background(), sess, tenant(-100500), 5)
		assert.Equal(t, "https://invite.example/xyz", d.InviteLink)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
