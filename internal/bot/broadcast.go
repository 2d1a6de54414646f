package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/gateway"
)

// handleBroadcast sends a text to every user the primary bot has seen.
// Owner-only. The iteration runs detached; per-user failures (blocked
// bot, deleted account) are counted, not fatal.
func (p *Primary) handleBroadcast(ctx context.Context, msg gateway.Message) {
	if !p.owners[msg.From.ID] {
		return
	}
	text := strings.TrimSpace(msg.Args)
	if text == "" {
		p.reply(ctx, msg.ChatID, "Usage: /broadcast <message>")
		return
	}

	users, err := p.deps.Store.ListUsers(primaryTenantID)
	if err != nil {
		p.log.WithError(err).Error("listing broadcast recipients failed")
		p.reply(ctx, msg.ChatID, "Something went wrong. Please try again later.")
		return
	}

	jobID := uuid.NewString()
	log := p.log.WithFields(logrus.Fields{"job": jobID, "recipients": len(users)})
	log.Info("broadcast started")
	p.reply(ctx, msg.ChatID, fmt.Sprintf("Broadcasting to %d users (job %s).", len(users), jobID))

	go func() {
		sent, failed := 0, 0
		for _, userID := range users {
			sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := p.sess.Send(sendCtx, userID, gateway.Outgoing{Text: text})
			cancel()
			if err != nil {
				failed++
				continue
			}
			sent++
		}
		log.WithFields(logrus.Fields{"sent": sent, "failed": failed}).Info("broadcast finished")
	}()
}
