package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/dialog"
	"github.com/tealstack/filefleet/internal/fleet"
	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/store"
	"github.com/tealstack/filefleet/internal/token"
)

const defaultGreeting = "Hi! Open a share link to receive a file."

// NewCloneFactory returns the fleet handler factory: one clone handler
// per started session, wired to a fresh dispatch table.
func NewCloneFactory(deps Deps) fleet.HandlerFactory {
	return func(s *fleet.Session) fleet.UpdateHandler {
		c := &clone{
			deps: deps,
			sess: s,
			log:  deps.Log.WithField("tenant", s.TenantID),
		}
		d := NewDispatcher()
		d.Command("start", c.handleStart)
		d.Command("settings", c.handleSettings)
		d.Command("mods", c.handleListMods)
		d.Command("delmods", c.handleClearMods)
		d.Command("stats", c.handleStats)
		d.Callback("set", c.handleSettingCallback)
		d.Fallback(c.handleMessage)
		c.dispatch = d
		return c.handle
	}
}

type clone struct {
	deps     Deps
	sess     *fleet.Session
	dispatch *Dispatcher
	log      *logrus.Entry
}

func (c *clone) handle(ctx context.Context, upd gateway.Update) {
	if upd.Message != nil {
		msg := *upd.Message
		if err := c.deps.Store.TouchUser(c.sess.TenantID, msg.From.ID); err != nil {
			c.log.WithError(err).Debug("recording user failed")
		}
		// A pending configuration prompt claims the admin's next
		// message before normal routing sees it.
		if c.deps.Dialogs.HandleMessage(ctx, msg) {
			return
		}
	}
	c.dispatch.Dispatch(ctx, upd)
}

// record loads the tenant's current record; replies generically and
// returns nil when the store is unavailable.
func (c *clone) record(ctx context.Context, chatID int64) *store.TenantRecord {
	rec, err := c.deps.Store.Get(c.sess.TenantID)
	if err != nil {
		c.log.WithError(err).Error("loading tenant record failed")
		c.reply(ctx, chatID, "Something went wrong. Please try again later.")
		return nil
	}
	if rec == nil {
		c.log.Warn("tenant record missing for live session")
		return nil
	}
	return rec
}

func (c *clone) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.sess.Gateway().Send(ctx, chatID, gateway.Outgoing{Text: text}); err != nil {
		c.log.WithError(err).Debug("reply failed")
	}
}

func (c *clone) isAdmin(rec *store.TenantRecord, userID int64) bool {
	return rec.OwnerID == userID
}

func (c *clone) canUpload(rec *store.TenantRecord, userID int64) bool {
	return rec.OwnerID == userID || rec.Settings.Moderators.Contains(userID)
}

// handleStart greets on a bare /start and serves content when the
// deep-link payload is present.
func (c *clone) handleStart(ctx context.Context, msg gateway.Message) {
	rec := c.record(ctx, msg.ChatID)
	if rec == nil {
		return
	}
	if msg.Args != "" {
		c.serve(ctx, rec, msg)
		return
	}

	greeting := rec.Settings.StartMessage
	if greeting == "" {
		greeting = defaultGreeting
	}
	out := gateway.Outgoing{Text: greeting, PhotoRef: rec.Settings.StartPhoto}
	if _, err := c.sess.Gateway().Send(ctx, msg.ChatID, out); err != nil {
		c.log.WithError(err).Debug("greeting failed")
	}
}

// serve resolves the share token, runs the admission gate and delivers
// the stored content, arming auto-deletion when configured.
func (c *clone) serve(ctx context.Context, rec *store.TenantRecord, msg gateway.Message) {
	ref, err := token.Decode(msg.Args)
	if err != nil {
		c.reply(ctx, msg.ChatID, "Content not found.")
		return
	}

	if rec.Settings.Visibility == store.VisibilityPrivate && !c.canUpload(rec, msg.From.ID) {
		c.reply(ctx, msg.ChatID, "This bot is private.")
		return
	}

	decision := c.deps.Gate.Check(ctx, c.sess.Gateway(), rec, msg.From.ID)
	if !decision.Allowed {
		out := gateway.Outgoing{Text: "Join the channel first, then open the link again."}
		if decision.InviteLink != "" {
			out.Buttons = [][]gateway.Button{{{Label: "Join channel", URL: decision.InviteLink}}}
		}
		if _, err := c.sess.Gateway().Send(ctx, msg.ChatID, out); err != nil {
			c.log.WithError(err).Debug("gate denial message failed")
		}
		return
	}

	delivered, err := c.sess.Gateway().Copy(ctx, c.deps.StorageChatID, int(ref), msg.ChatID)
	if err != nil {
		c.log.WithError(err).WithField("ref", ref).Warn("delivery failed")
		c.reply(ctx, msg.ChatID, "Content not found.")
		return
	}

	delay := rec.Settings.AutoDeleteSeconds
	c.deps.Ephemeral.ScheduleDelete(c.sess.Gateway(), msg.ChatID, delivered, delay)
	if delay > 0 {
		c.reply(ctx, msg.ChatID, fmt.Sprintf("This file self-destructs in %d seconds. Save it now.", delay))
	}
}

// handleMessage stores uploads from the owner and moderators and hands
// back a share link.
func (c *clone) handleMessage(ctx context.Context, msg gateway.Message) {
	if !msg.HasFile {
		return
	}
	rec := c.record(ctx, msg.ChatID)
	if rec == nil {
		return
	}
	if !c.canUpload(rec, msg.From.ID) {
		return
	}

	ref, err := c.sess.Gateway().Copy(ctx, msg.ChatID, msg.ID, c.deps.StorageChatID)
	if err != nil {
		c.log.WithError(err).Warn("storing upload failed")
		c.reply(ctx, msg.ChatID, "Could not store that file. Please try again.")
		return
	}

	link := c.deps.deepLink(rec.Handle, token.Encode(int64(ref)))
	c.reply(ctx, msg.ChatID, "Stored. Share link:\n"+link)
}

func (c *clone) handleSettings(ctx context.Context, msg gateway.Message) {
	rec := c.record(ctx, msg.ChatID)
	if rec == nil || !c.isAdmin(rec, msg.From.ID) {
		return
	}

	visLabel := "Make private"
	if rec.Settings.Visibility == store.VisibilityPrivate {
		visLabel = "Make public"
	}
	out := gateway.Outgoing{
		Text: "Bot settings",
		Buttons: [][]gateway.Button{
			{{Label: "Greeting text", Data: "set:greeting"}, {Label: "Greeting photo", Data: "set:photo"}},
			{{Label: "Require channel join", Data: "set:gate"}, {Label: "Disable join gate", Data: "set:gateoff"}},
			{{Label: "Auto-delete delay", Data: "set:autodel"}, {Label: "Add moderator", Data: "set:mod"}},
			{{Label: visLabel, Data: "set:vis"}},
		},
	}
	if _, err := c.sess.Gateway().Send(ctx, msg.ChatID, out); err != nil {
		c.log.WithError(err).Debug("settings menu failed")
	}
}

func (c *clone) handleSettingCallback(ctx context.Context, cb gateway.Callback) {
	rec := c.record(ctx, cb.ChatID)
	if rec == nil || !c.isAdmin(rec, cb.From.ID) {
		return
	}

	_, action, _ := strings.Cut(cb.Data, ":")
	var kind dialog.Kind
	switch action {
	case "greeting":
		kind = dialog.KindStartMessage
	case "photo":
		kind = dialog.KindStartPhoto
	case "gate":
		kind = dialog.KindGateChannel
	case "autodel":
		kind = dialog.KindAutoDelete
	case "mod":
		kind = dialog.KindAddModerator
	case "gateoff":
		if err := c.deps.Store.UpdateSetting(rec.TenantID, store.SettingGateChannel, 0); err != nil {
			c.log.WithError(err).Error("disabling gate failed")
			c.reply(ctx, cb.ChatID, "Something went wrong. Please try again.")
			return
		}
		c.reply(ctx, cb.ChatID, "Join gate disabled.")
		return
	case "vis":
		next := store.VisibilityPrivate
		if rec.Settings.Visibility == store.VisibilityPrivate {
			next = store.VisibilityPublic
		}
		if err := c.deps.Store.UpdateSetting(rec.TenantID, store.SettingVisibility, next); err != nil {
			c.log.WithError(err).Error("toggling visibility failed")
			c.reply(ctx, cb.ChatID, "Something went wrong. Please try again.")
			return
		}
		c.reply(ctx, cb.ChatID, "Visibility is now "+next+".")
		return
	default:
		return
	}

	if err := c.deps.Dialogs.Prompt(ctx, c.sess.Gateway(), cb.From.ID, rec.TenantID, cb.ChatID, kind); err != nil {
		c.log.WithError(err).Error("starting prompt failed")
	}
}

func (c *clone) handleListMods(ctx context.Context, msg gateway.Message) {
	rec := c.record(ctx, msg.ChatID)
	if rec == nil || !c.isAdmin(rec, msg.From.ID) {
		return
	}
	if len(rec.Settings.Moderators) == 0 {
		c.reply(ctx, msg.ChatID, "No moderators.")
		return
	}
	var b strings.Builder
	b.WriteString("Moderators:\n")
	for _, id := range rec.Settings.Moderators {
		fmt.Fprintf(&b, "- %d\n", id)
	}
	c.reply(ctx, msg.ChatID, b.String())
}

func (c *clone) handleClearMods(ctx context.Context, msg gateway.Message) {
	rec := c.record(ctx, msg.ChatID)
	if rec == nil || !c.isAdmin(rec, msg.From.ID) {
		return
	}
	if err := c.deps.Store.ClearModerators(rec.TenantID); err != nil {
		c.log.WithError(err).Error("clearing moderators failed")
		c.reply(ctx, msg.ChatID, "Something went wrong. Please try again.")
		return
	}
	c.reply(ctx, msg.ChatID, "All moderators removed.")
}

func (c *clone) handleStats(ctx context.Context, msg gateway.Message) {
	rec := c.record(ctx, msg.ChatID)
	if rec == nil || !c.isAdmin(rec, msg.From.ID) {
		return
	}
	n, err := c.deps.Store.CountUsers(rec.TenantID)
	if err != nil {
		c.log.WithError(err).Error("counting users failed")
		c.reply(ctx, msg.ChatID, "Something went wrong. Please try again.")
		return
	}
	c.reply(ctx, msg.ChatID, fmt.Sprintf("%d users have talked to this bot.", n))
}
