package gateway

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Telegram implements Gateway against the Telegram Bot API.
type Telegram struct {
	log *logrus.Entry
}

// NewTelegram creates the Telegram gateway.
func NewTelegram(log *logrus.Entry) *Telegram {
	return &Telegram{log: log}
}

// Connect validates the credential by authenticating against the Bot
// API (NewBotAPI performs a getMe round-trip).
func (t *Telegram) Connect(ctx context.Context, credential string) (Session, error) {
	api, err := tgbotapi.NewBotAPI(credential)
	if err != nil {
		return nil, NewError(CodeAuth, "credential rejected", err)
	}
	return &telegramSession{
		api: api,
		log: t.log.WithField("bot", api.Self.UserName),
	}, nil
}

type telegramSession struct {
	api *tgbotapi.BotAPI
	log *logrus.Entry
}

func (s *telegramSession) Info() BotInfo {
	return BotInfo{
		ID:          s.api.Self.ID,
		Username:    s.api.Self.UserName,
		DisplayName: s.api.Self.FirstName,
	}
}

func (s *telegramSession) Send(ctx context.Context, chatID int64, out Outgoing) (int, error) {
	var msg tgbotapi.Chattable
	markup := buildMarkup(out.Buttons)

	if out.PhotoRef != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(out.PhotoRef))
		photo.Caption = out.Text
		if markup != nil {
			photo.ReplyMarkup = markup
		}
		msg = photo
	} else {
		text := tgbotapi.NewMessage(chatID, out.Text)
		if markup != nil {
			text.ReplyMarkup = markup
		}
		msg = text
	}

	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, classify("send", err)
	}
	return sent.MessageID, nil
}

func (s *telegramSession) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := s.api.Send(edit); err != nil {
		return classify("edit", err)
	}
	return nil
}

func (s *telegramSession) Copy(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error) {
	copied, err := s.api.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, classify("copy", err)
	}
	return copied.MessageID, nil
}

func (s *telegramSession) Membership(ctx context.Context, channelID, userID int64) (MemberStatus, error) {
	member, err := s.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: channelID,
			UserID: userID,
		},
	})
	if err != nil {
		return "", classify("membership", err)
	}
	return MemberStatus(member.Status), nil
}

func (s *telegramSession) InviteLink(ctx context.Context, channelID int64) (string, error) {
	link, err := s.api.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: channelID},
	})
	if err != nil {
		return "", classify("invite link", err)
	}
	return link, nil
}

func (s *telegramSession) Delete(ctx context.Context, chatID int64, messageID int) error {
	if _, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (s *telegramSession) Updates(ctx context.Context) <-chan Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	raw := s.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				s.api.StopReceivingUpdates()
				return
			case upd, ok := <-raw:
				if !ok {
					return
				}
				norm, ok := normalizeUpdate(upd)
				if !ok {
					continue
				}
				select {
				case out <- norm:
				case <-ctx.Done():
					s.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

func (s *telegramSession) Close() error {
	s.api.StopReceivingUpdates()
	return nil
}

func buildMarkup(rows [][]Button) interface{} {
	if len(rows) == 0 {
		return nil
	}
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var line []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				line = append(line, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				line = append(line, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
		}
		keyboard = append(keyboard, line)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

func normalizeUpdate(upd tgbotapi.Update) (Update, bool) {
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		norm := Callback{
			ID:   cb.ID,
			Data: cb.Data,
		}
		if cb.From != nil {
			norm.From = User{ID: cb.From.ID, Username: cb.From.UserName}
		}
		if cb.Message != nil {
			norm.ChatID = cb.Message.Chat.ID
			norm.MessageID = cb.Message.MessageID
		}
		return Update{Callback: &norm}, true
	}

	if upd.Message != nil {
		msg := upd.Message
		norm := Message{
			ID:     msg.MessageID,
			ChatID: msg.Chat.ID,
			Text:   msg.Text,
			HasFile: msg.Document != nil || len(msg.Photo) > 0 ||
				msg.Video != nil || msg.Audio != nil || msg.Voice != nil,
			FileRef: fileRef(msg),
		}
		if msg.From != nil {
			norm.From = User{ID: msg.From.ID, Username: msg.From.UserName}
		}
		if msg.IsCommand() {
			norm.Command = msg.Command()
			norm.Args = strings.TrimSpace(msg.CommandArguments())
		}
		return Update{Message: &norm}, true
	}

	return Update{}, false
}

// fileRef extracts the network file id of the message payload. For
// photos the largest size wins.
func fileRef(msg *tgbotapi.Message) string {
	switch {
	case msg.Document != nil:
		return msg.Document.FileID
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Audio != nil:
		return msg.Audio.FileID
	case msg.Voice != nil:
		return msg.Voice.FileID
	default:
		return ""
	}
}

// classify maps Bot API errors onto the gateway error taxonomy.
func classify(op string, err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "unauthorized"):
		return NewError(CodeAuth, op+" unauthorized", err)
	case strings.Contains(text, "user not found"),
		strings.Contains(text, "participant_id_invalid"),
		strings.Contains(text, "user_not_participant"):
		return NewError(CodeNotParticipant, op+": user not in channel", err)
	case strings.Contains(text, "bad request"):
		return NewError(CodeBadRequest, op+" rejected", err)
	default:
		return NewError(CodeUnavailable, op+" failed", err)
	}
}
