// Package gateway abstracts the messaging network. The rest of the
// platform talks to these interfaces; the Telegram implementation lives
// in telegram.go and tests substitute the fake from gatewaytest.
package gateway

import "context"

// Gateway opens authenticated sessions against the messaging network.
type Gateway interface {
	// Connect validates the credential and returns a live session.
	// An invalid credential yields an Error with CodeAuth.
	Connect(ctx context.Context, credential string) (Session, error)
}

// BotInfo identifies the account a session is authenticated as.
type BotInfo struct {
	ID          int64
	Username    string
	DisplayName string
}

// MemberStatus is a user's membership status in a channel.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// User is the sender of an inbound event.
type User struct {
	ID       int64
	Username string
}

// Message is a normalized inbound message.
type Message struct {
	ID      int
	ChatID  int64
	From    User
	Text    string
	Command string // bot command without the leading slash, "" if none
	Args    string // text after the command
	HasFile bool   // carries a document, photo, video or audio payload
	FileRef string // network file id of the payload, "" if none
}

// Callback is a normalized inline-keyboard callback.
type Callback struct {
	ID        string
	From      User
	ChatID    int64
	MessageID int
	Data      string
}

// Update is one inbound event from the network.
type Update struct {
	Message  *Message
	Callback *Callback
}

// Button is one inline keyboard button. Data and URL are mutually
// exclusive.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Outgoing describes a message to send. If PhotoRef is set the message
// is a photo with Text as caption.
type Outgoing struct {
	Text     string
	PhotoRef string
	Buttons  [][]Button
}

// Session is a live, authenticated connection for one bot account.
type Session interface {
	// Info returns the authenticated account's identity.
	Info() BotInfo

	// Send delivers a message to a chat and returns the new message id.
	Send(ctx context.Context, chatID int64, out Outgoing) (int, error)

	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, chatID int64, messageID int, text string) error

	// Copy re-posts a stored message into a chat and returns the new
	// message id. Used both to persist uploads into the storage chat
	// and to deliver stored content to users.
	Copy(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error)

	// Membership returns the user's status in a channel.
	Membership(ctx context.Context, channelID, userID int64) (MemberStatus, error)

	// InviteLink returns an invite link for a channel the bot
	// administers.
	InviteLink(ctx context.Context, channelID int64) (string, error)

	// Delete removes a message from a chat.
	Delete(ctx context.Context, chatID int64, messageID int) error

	// Updates returns the inbound event stream. The channel closes when
	// ctx is cancelled or the session is closed.
	Updates(ctx context.Context) <-chan Update

	// Close tears the session down.
	Close() error
}
