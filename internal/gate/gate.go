// Package gate enforces the per-tenant mandatory-membership policy:
// users must be in the tenant's gate channel before they are served.
package gate

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/store"
)

// Decision is the outcome of a membership check. When denied,
// InviteLink carries a join link for the gate channel if one could be
// obtained.
type Decision struct {
	Allowed    bool
	ChannelID  int64
	InviteLink string
}

// Gate evaluates the membership policy. Invite links are cached per
// channel so a burst of denied users does not hammer the network.
type Gate struct {
	invites *cache.Cache
	log     *logrus.Entry
}

// New creates a gate with a 30 minute invite-link cache.
func New(log *logrus.Entry) *Gate {
	return &Gate{
		invites: cache.New(30*time.Minute, 10*time.Minute),
		log:     log,
	}
}

// Check decides whether the user may be served by the tenant. Policy:
// no gate channel configured, or status member/administrator/creator →
// allowed; left/kicked or an explicit not-a-participant signal →
// denied with an invite link; any other gateway failure → fail open,
// so a transient fault never locks every user out.
func (g *Gate) Check(ctx context.Context, sess gateway.Session, rec *store.TenantRecord, userID int64) Decision {
	channel := rec.Settings.GateChannel
	if channel == 0 {
		return Decision{Allowed: true}
	}

	status, err := sess.Membership(ctx, channel, userID)
	if err != nil {
		if gateway.IsNotParticipant(err) {
			return g.deny(ctx, sess, channel)
		}
		g.log.WithError(err).WithFields(logrus.Fields{
			"tenant":  rec.TenantID,
			"channel": channel,
			"user":    userID,
		}).Warn("membership check failed, allowing")
		return Decision{Allowed: true, ChannelID: channel}
	}

	switch status {
	case gateway.StatusMember, gateway.StatusAdministrator, gateway.StatusCreator:
		return Decision{Allowed: true, ChannelID: channel}
	case gateway.StatusLeft, gateway.StatusKicked:
		return g.deny(ctx, sess, channel)
	default:
		g.log.WithFields(logrus.Fields{
			"tenant": rec.TenantID,
			"status": status,
		}).Debug("unhandled membership status, allowing")
		return Decision{Allowed: true, ChannelID: channel}
	}
}

func (g *Gate) deny(ctx context.Context, sess gateway.Session, channel int64) Decision {
	d := Decision{ChannelID: channel}
	key := strconv.FormatInt(channel, 10)
	if link, ok := g.invites.Get(key); ok {
		d.InviteLink = link.(string)
		return d
	}
	link, err := sess.InviteLink(ctx, channel)
	if err != nil {
		g.log.WithError(err).WithField("channel", channel).Warn("fetching invite link failed")
		return d
	}
	g.invites.SetDefault(key, link)
	d.InviteLink = link
	return d
}
