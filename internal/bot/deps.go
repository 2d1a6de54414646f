package bot

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/dialog"
	"github.com/tealstack/filefleet/internal/ephemeral"
	"github.com/tealstack/filefleet/internal/gate"
	"github.com/tealstack/filefleet/internal/store"
)

// Deps bundles the collaborators every handler set needs.
type Deps struct {
	Store     *store.Store
	Gate      *gate.Gate
	Dialogs   *dialog.Manager
	Ephemeral *ephemeral.Scheduler

	// StorageChatID is the chat holding all stored content; content
	// references are message ids in this chat.
	StorageChatID int64

	// LinkHost is the deep-link host, normally "t.me".
	LinkHost string

	Log *logrus.Entry
}

// deepLink builds the shareable deep link for a bot handle and token.
func (d Deps) deepLink(handle, tok string) string {
	return fmt.Sprintf("https://%s/%s?start=%s", d.LinkHost, handle, tok)
}
