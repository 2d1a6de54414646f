package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/fleet"
	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/token"
)

// primaryTenantID keys the primary bot's own user population in the
// store.
const primaryTenantID = 0

// Primary is the platform's main bot: it serves files itself and hosts
// the owner-facing clone management commands.
type Primary struct {
	deps   Deps
	mgr    *fleet.Manager
	owners map[int64]bool

	sess     gateway.Session
	dispatch *Dispatcher
	cancel   context.CancelFunc
	done     chan struct{}
	log      *logrus.Entry
}

// NewPrimary creates the primary bot. owners are the platform
// administrators allowed to broadcast.
func NewPrimary(deps Deps, mgr *fleet.Manager, owners []int64) *Primary {
	p := &Primary{
		deps:   deps,
		mgr:    mgr,
		owners: make(map[int64]bool),
		log:    deps.Log.WithField("component", "primary"),
	}
	for _, id := range owners {
		p.owners[id] = true
	}

	d := NewDispatcher()
	d.Command("start", p.handleStart)
	d.Command("help", p.handleHelp)
	d.Command("add", p.handleAdd)
	d.Command("mybots", p.handleMyBots)
	d.Command("delete", p.handleDelete)
	d.Command("broadcast", p.handleBroadcast)
	d.Command("stats", p.handleStats)
	d.Callback("bot", p.handleBotCallback)
	d.Fallback(p.handleMessage)
	p.dispatch = d
	return p
}

// Start connects the primary bot and begins consuming its events.
func (p *Primary) Start(ctx context.Context, gw gateway.Gateway, credential string) error {
	sess, err := gw.Connect(ctx, credential)
	if err != nil {
		return fmt.Errorf("primary bot: %w", err)
	}
	p.sess = sess

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		for upd := range sess.Updates(runCtx) {
			p.handle(runCtx, upd)
		}
	}()

	p.log.WithField("handle", sess.Info().Username).Info("primary bot online")
	return nil
}

// Stop tears the primary bot down.
func (p *Primary) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.sess.Close()
	p.log.Info("primary bot stopped")
}

// Session returns the primary bot's gateway session.
func (p *Primary) Session() gateway.Session {
	return p.sess
}

func (p *Primary) handle(ctx context.Context, upd gateway.Update) {
	if upd.Message != nil {
		msg := *upd.Message
		if err := p.deps.Store.TouchUser(primaryTenantID, msg.From.ID); err != nil {
			p.log.WithError(err).Debug("recording user failed")
		}
		if p.deps.Dialogs.HandleMessage(ctx, msg) {
			return
		}
	}
	p.dispatch.Dispatch(ctx, upd)
}

func (p *Primary) reply(ctx context.Context, chatID int64, text string) {
	if _, err := p.sess.Send(ctx, chatID, gateway.Outgoing{Text: text}); err != nil {
		p.log.WithError(err).Debug("reply failed")
	}
}

func (p *Primary) handleStart(ctx context.Context, msg gateway.Message) {
	if msg.Args != "" {
		p.serve(ctx, msg)
		return
	}
	p.reply(ctx, msg.ChatID,
		"Welcome! Open a share link to receive a file.\n"+
			"Want a bot like this of your own? Send /add with your bot token.")
}

func (p *Primary) handleHelp(ctx context.Context, msg gateway.Message) {
	p.reply(ctx, msg.ChatID,
		"/add <token> - register your own clone bot\n"+
			"/mybots - list and manage your clones\n"+
			"/delete <id> - remove a clone\n"+
			"/help - this message")
}

// serve delivers stored content through the primary bot. The primary
// has no membership gate or auto-deletion of its own.
func (p *Primary) serve(ctx context.Context, msg gateway.Message) {
	ref, err := token.Decode(msg.Args)
	if err != nil {
		p.reply(ctx, msg.ChatID, "Content not found.")
		return
	}
	if _, err := p.sess.Copy(ctx, p.deps.StorageChatID, int(ref), msg.ChatID); err != nil {
		p.log.WithError(err).WithField("ref", ref).Warn("delivery failed")
		p.reply(ctx, msg.ChatID, "Content not found.")
	}
}

// handleMessage stores uploads from platform owners.
func (p *Primary) handleMessage(ctx context.Context, msg gateway.Message) {
	if !msg.HasFile || !p.owners[msg.From.ID] {
		return
	}
	ref, err := p.sess.Copy(ctx, msg.ChatID, msg.ID, p.deps.StorageChatID)
	if err != nil {
		p.log.WithError(err).Warn("storing upload failed")
		p.reply(ctx, msg.ChatID, "Could not store that file. Please try again.")
		return
	}
	link := p.deps.deepLink(p.sess.Info().Username, token.Encode(int64(ref)))
	p.reply(ctx, msg.ChatID, "Stored. Share link:\n"+link)
}

func (p *Primary) handleAdd(ctx context.Context, msg gateway.Message) {
	credential := strings.TrimSpace(msg.Args)
	if credential == "" {
		p.reply(ctx, msg.ChatID, "Usage: /add <bot token from @BotFather>")
		return
	}

	rec, err := p.mgr.RegisterAndStart(ctx, credential, msg.From.ID)
	switch {
	case errors.Is(err, fleet.ErrInvalidCredential):
		p.reply(ctx, msg.ChatID, "That token was rejected. Check it with @BotFather and try again.")
	case errors.Is(err, fleet.ErrDuplicateTenant):
		p.reply(ctx, msg.ChatID, "A bot with that token is already registered.")
	case err != nil:
		p.log.WithError(err).Error("clone registration failed")
		p.reply(ctx, msg.ChatID, "Something went wrong. Please try again later.")
	default:
		p.reply(ctx, msg.ChatID, fmt.Sprintf("@%s is up and running. Open it and send /settings to configure.", rec.Handle))
	}
}

func (p *Primary) handleMyBots(ctx context.Context, msg gateway.Message) {
	recs, err := p.deps.Store.ListByOwner(msg.From.ID)
	if err != nil {
		p.log.WithError(err).Error("listing clones failed")
		p.reply(ctx, msg.ChatID, "Something went wrong. Please try again later.")
		return
	}
	if len(recs) == 0 {
		p.reply(ctx, msg.ChatID, "You have no bots yet. Send /add with a bot token to create one.")
		return
	}

	var b strings.Builder
	var buttons [][]gateway.Button
	b.WriteString("Your bots:\n")
	for _, rec := range recs {
		state := "stopped"
		if p.mgr.Running(rec.TenantID) {
			state = "running"
		}
		fmt.Fprintf(&b, "@%s (%d) - %s\n", rec.Handle, rec.TenantID, state)
		buttons = append(buttons, []gateway.Button{{
			Label: "Delete @" + rec.Handle,
			Data:  "bot:del:" + strconv.FormatInt(rec.TenantID, 10),
		}})
	}
	out := gateway.Outgoing{Text: b.String(), Buttons: buttons}
	if _, err := p.sess.Send(ctx, msg.ChatID, out); err != nil {
		p.log.WithError(err).Debug("bot list failed")
	}
}

func (p *Primary) handleDelete(ctx context.Context, msg gateway.Message) {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.Args), 10, 64)
	if err != nil {
		p.reply(ctx, msg.ChatID, "Usage: /delete <bot id> (see /mybots)")
		return
	}
	p.deleteClone(ctx, msg.ChatID, id, msg.From.ID)
}

func (p *Primary) handleBotCallback(ctx context.Context, cb gateway.Callback) {
	parts := strings.Split(cb.Data, ":")
	if len(parts) != 3 || parts[1] != "del" {
		return
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return
	}
	p.deleteClone(ctx, cb.ChatID, id, cb.From.ID)
}

func (p *Primary) deleteClone(ctx context.Context, chatID, tenantID, requesterID int64) {
	err := p.mgr.Delete(ctx, tenantID, requesterID)
	switch {
	case errors.Is(err, fleet.ErrNotOwner):
		p.reply(ctx, chatID, "That bot is not yours.")
	case err != nil:
		p.log.WithError(err).Error("clone deletion failed")
		p.reply(ctx, chatID, "Something went wrong. Please try again later.")
	default:
		p.reply(ctx, chatID, "Bot deleted.")
	}
}

func (p *Primary) handleStats(ctx context.Context, msg gateway.Message) {
	if !p.owners[msg.From.ID] {
		return
	}
	users, err := p.deps.Store.CountUsers(primaryTenantID)
	if err != nil {
		p.log.WithError(err).Error("counting users failed")
		return
	}
	p.reply(ctx, msg.ChatID, fmt.Sprintf("%d users, %d clones running.", users, p.mgr.ActiveCount()))
}
