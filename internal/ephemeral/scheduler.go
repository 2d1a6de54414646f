// Package ephemeral deletes delivered content after a configured delay
// without holding up the serving path.
package ephemeral

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/gateway"
)

// Scheduler arms one-shot deferred deletions.
type Scheduler struct {
	log *logrus.Entry
}

// New creates a scheduler.
func New(log *logrus.Entry) *Scheduler {
	return &Scheduler{log: log}
}

// ScheduleDelete arms deletion of a delivered message after
// delaySeconds. A delay of 0 disables deletion. The call returns
// immediately; the deletion runs detached, and a failure (the user
// already removed the message) is swallowed.
func (s *Scheduler) ScheduleDelete(sess gateway.Session, chatID int64, messageID int, delaySeconds int) {
	if delaySeconds <= 0 {
		return
	}
	s.ScheduleDeleteIn(sess, chatID, messageID, time.Duration(delaySeconds)*time.Second)
}

// ScheduleDeleteIn is ScheduleDelete with a raw duration.
func (s *Scheduler) ScheduleDeleteIn(sess gateway.Session, chatID int64, messageID int, delay time.Duration) {
	if delay <= 0 {
		return
	}
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.Delete(ctx, chatID, messageID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"chat":    chatID,
				"message": messageID,
			}).Debug("deferred delete failed")
		}
	})
}
