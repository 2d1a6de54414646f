// Package gatewaytest provides in-memory gateway fakes for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/tealstack/filefleet/internal/gateway"
)

// Fake is an in-memory Gateway. Credentials lists the accepted
// credentials and the account each one authenticates as.
type Fake struct {
	mu          sync.Mutex
	Credentials map[string]gateway.BotInfo
	Sessions    []*FakeSession
}

// NewFake creates a fake gateway with no valid credentials.
func NewFake() *Fake {
	return &Fake{Credentials: make(map[string]gateway.BotInfo)}
}

// Allow registers a credential as valid.
func (f *Fake) Allow(credential string, info gateway.BotInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Credentials[credential] = info
}

// Revoke makes a previously valid credential invalid.
func (f *Fake) Revoke(credential string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Credentials, credential)
}

// Connect implements gateway.Gateway.
func (f *Fake) Connect(ctx context.Context, credential string) (gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.Credentials[credential]
	if !ok {
		return nil, gateway.NewError(gateway.CodeAuth, "credential rejected", nil)
	}
	sess := NewFakeSession(info)
	f.Sessions = append(f.Sessions, sess)
	return sess, nil
}

// Sent records one Send call.
type Sent struct {
	ChatID    int64
	Out       gateway.Outgoing
	MessageID int
}

// Edited records one Edit call.
type Edited struct {
	ChatID    int64
	MessageID int
	Text      string
}

// Copied records one Copy call.
type Copied struct {
	FromChatID int64
	MessageID  int
	ToChatID   int64
	NewID      int
}

// Removed records one Delete call.
type Removed struct {
	ChatID    int64
	MessageID int
}

// FakeSession is an in-memory gateway.Session that records outbound
// traffic and lets tests inject inbound updates.
type FakeSession struct {
	mu   sync.Mutex
	info gateway.BotInfo

	sent      []Sent
	edits     []Edited
	copies    []Copied
	deletions []Removed

	// Optional behavior overrides.
	MembershipFn func(channelID, userID int64) (gateway.MemberStatus, error)
	InviteLinkFn func(channelID int64) (string, error)
	DeleteErr    error

	inbound chan gateway.Update
	closed  bool
	nextID  int
}

// NewFakeSession creates a fake session authenticated as info.
func NewFakeSession(info gateway.BotInfo) *FakeSession {
	return &FakeSession{
		info:    info,
		inbound: make(chan gateway.Update, 16),
		nextID:  100,
	}
}

// Inject feeds an inbound update to whoever consumes Updates.
func (s *FakeSession) Inject(upd gateway.Update) {
	s.inbound <- upd
}

// InjectMessage is shorthand for injecting a message update.
func (s *FakeSession) InjectMessage(msg gateway.Message) {
	s.Inject(gateway.Update{Message: &msg})
}

func (s *FakeSession) Info() gateway.BotInfo {
	return s.info
}

func (s *FakeSession) Send(ctx context.Context, chatID int64, out gateway.Outgoing) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.sent = append(s.sent, Sent{ChatID: chatID, Out: out, MessageID: s.nextID})
	return s.nextID, nil
}

func (s *FakeSession) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, Edited{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (s *FakeSession) Copy(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.copies = append(s.copies, Copied{
		FromChatID: fromChatID, MessageID: messageID, ToChatID: toChatID, NewID: s.nextID,
	})
	return s.nextID, nil
}

func (s *FakeSession) Membership(ctx context.Context, channelID, userID int64) (gateway.MemberStatus, error) {
	if s.MembershipFn != nil {
		return s.MembershipFn(channelID, userID)
	}
	return gateway.StatusMember, nil
}

func (s *FakeSession) InviteLink(ctx context.Context, channelID int64) (string, error) {
	if s.InviteLinkFn != nil {
		return s.InviteLinkFn(channelID)
	}
	return "https://invite.example/abc", nil
}

func (s *FakeSession) Delete(ctx context.Context, chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.deletions = append(s.deletions, Removed{ChatID: chatID, MessageID: messageID})
	return nil
}

func (s *FakeSession) Updates(ctx context.Context) <-chan gateway.Update {
	out := make(chan gateway.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-s.inbound:
				if !ok {
					return
				}
				select {
				case out <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.inbound)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent returns a snapshot of all Send calls.
func (s *FakeSession) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Edits returns a snapshot of all Edit calls.
func (s *FakeSession) Edits() []Edited {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edited(nil), s.edits...)
}

// Copies returns a snapshot of all Copy calls.
func (s *FakeSession) Copies() []Copied {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Copied(nil), s.copies...)
}

// Deletions returns a snapshot of all Delete calls.
func (s *FakeSession) Deletions() []Removed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Removed(nil), s.deletions...)
}

// LastSent returns the most recent Send call, or nil.
func (s *FakeSession) LastSent() *Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	last := s.sent[len(s.sent)-1]
	return &last
}
