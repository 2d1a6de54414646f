// Package dialog runs the short-lived configuration conversations with
// tenant admins: a prompt is sent, the next qualifying message from the
// same admin answers it, and a hard deadline bounds the wait.
package dialog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/store"
)

// CancelCommand is the keyword that aborts any pending prompt.
const CancelCommand = "cancel"

// Kind identifies what a prompt is asking for.
type Kind int

const (
	KindStartMessage Kind = iota
	KindStartPhoto
	KindGateChannel
	KindAutoDelete
	KindAddModerator
)

func (k Kind) question() string {
	switch k {
	case KindStartMessage:
		return "Send the new greeting text. /cancel to abort."
	case KindStartPhoto:
		return "Send the photo to greet users with. /cancel to abort."
	case KindGateChannel:
		return "Send the numeric id of the channel users must join. /cancel to abort."
	case KindAutoDelete:
		return "Send the auto-delete delay, e.g. \"30s\", \"5 min\" or \"1h\". 0 disables it. /cancel to abort."
	case KindAddModerator:
		return "Send the numeric user id of the new moderator. /cancel to abort."
	default:
		return "Send a value. /cancel to abort."
	}
}

// session is one pending prompt. It is resolved exactly once: whichever
// of answer or deadline removes it from the manager's map first wins.
type session struct {
	adminID  int64
	tenantID int64
	kind     Kind
	chatID   int64
	promptID int
	gw       gateway.Session
	timer    *time.Timer
}

// Manager tracks pending prompts keyed by admin id.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*session

	reg     *store.Store
	timeout time.Duration
	log     *logrus.Entry
}

// NewManager creates a dialog manager. timeout bounds every prompt.
func NewManager(reg *store.Store, timeout time.Duration, log *logrus.Entry) *Manager {
	return &Manager{
		sessions: make(map[int64]*session),
		reg:      reg,
		timeout:  timeout,
		log:      log,
	}
}

// Prompt asks the admin for a value and arms the deadline. If the admin
// already has a pending prompt it is discarded; the new prompt wins.
func (m *Manager) Prompt(ctx context.Context, gw gateway.Session, adminID, tenantID, chatID int64, kind Kind) error {
	promptID, err := gw.Send(ctx, chatID, gateway.Outgoing{Text: kind.question()})
	if err != nil {
		return err
	}

	s := &session{
		adminID:  adminID,
		tenantID: tenantID,
		kind:     kind,
		chatID:   chatID,
		promptID: promptID,
		gw:       gw,
	}

	m.mu.Lock()
	if old, ok := m.sessions[adminID]; ok {
		old.timer.Stop()
	}
	m.sessions[adminID] = s
	s.timer = time.AfterFunc(m.timeout, func() { m.expire(s) })
	m.mu.Unlock()
	return nil
}

// Pending reports whether the admin has an unresolved prompt.
func (m *Manager) Pending(adminID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[adminID]
	return ok
}

// take removes s from the map if it is still the admin's live session.
// Returns false if the session was already resolved or replaced.
func (m *Manager) take(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.adminID] != s {
		return false
	}
	delete(m.sessions, s.adminID)
	return true
}

// expire is the deadline path. It edits the original prompt so the
// admin is never left without a terminal response.
func (m *Manager) expire(s *session) {
	if !m.take(s) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.gw.Edit(ctx, s.chatID, s.promptID, "Timed out waiting for a reply. Run the command again."); err != nil {
		m.log.WithError(err).Debug("editing timed out prompt failed")
	}
}

// HandleMessage resolves the sender's pending prompt with msg, if one
// exists in the same chat. Returns true when the message was consumed
// as a prompt answer.
func (m *Manager) HandleMessage(ctx context.Context, msg gateway.Message) bool {
	m.mu.Lock()
	s, ok := m.sessions[msg.From.ID]
	m.mu.Unlock()
	if !ok || s.chatID != msg.ChatID {
		return false
	}
	if !m.take(s) {
		return false
	}
	s.timer.Stop()

	if msg.Command == CancelCommand {
		m.reply(ctx, s, "Cancelled.")
		return true
	}

	value, key, err := resolve(s.kind, msg)
	if err != nil {
		// Terminal all the same; the admin re-invokes the prompt.
		m.reply(ctx, s, err.Error())
		return true
	}

	if key == store.SettingModerators {
		err = m.reg.AddModerator(s.tenantID, value.(int64))
	} else {
		err = m.reg.UpdateSetting(s.tenantID, key, value)
	}
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"tenant":  s.tenantID,
			"setting": key,
		}).Error("saving setting failed")
		m.reply(ctx, s, "Something went wrong saving that. Please try again.")
		return true
	}

	m.reply(ctx, s, "Saved.")
	return true
}

func (m *Manager) reply(ctx context.Context, s *session, text string) {
	if _, err := s.gw.Send(ctx, s.chatID, gateway.Outgoing{Text: text}); err != nil {
		m.log.WithError(err).Debug("dialog reply failed")
	}
}

// resolve validates the answer for the prompt kind and returns the
// setting value and key to write.
func resolve(kind Kind, msg gateway.Message) (interface{}, string, error) {
	text := strings.TrimSpace(msg.Text)
	switch kind {
	case KindStartMessage:
		if text == "" {
			return nil, "", &ValidationError{"The greeting cannot be empty."}
		}
		return text, store.SettingStartMessage, nil

	case KindStartPhoto:
		if !msg.HasFile || msg.FileRef == "" {
			return nil, "", &ValidationError{"That is not a photo. Send an image."}
		}
		return msg.FileRef, store.SettingStartPhoto, nil

	case KindGateChannel:
		id, err := parseChannelID(text)
		if err != nil {
			return nil, "", err
		}
		return id, store.SettingGateChannel, nil

	case KindAutoDelete:
		secs, err := ParseDelay(text)
		if err != nil {
			return nil, "", err
		}
		return secs, store.SettingAutoDelete, nil

	case KindAddModerator:
		id, err := parseUserID(text)
		if err != nil {
			return nil, "", err
		}
		return id, store.SettingModerators, nil
	}
	return nil, "", &ValidationError{"Unknown prompt."}
}
