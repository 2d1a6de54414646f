// Package fleet owns the set of live clone sessions. All session
// lifecycle (register, start, stop, delete, restart) goes through the
// Manager; nothing else reads or mutates the active map.
package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/store"
)

var (
	// ErrInvalidCredential means the messaging network rejected the
	// supplied bot credential.
	ErrInvalidCredential = errors.New("fleet: credential rejected by the messaging network")
	// ErrDuplicateTenant means a bot with this credential is already
	// registered.
	ErrDuplicateTenant = errors.New("fleet: bot already registered")
	// ErrNotOwner means the requester neither owns the bot nor has
	// elevated privilege.
	ErrNotOwner = errors.New("fleet: requester does not own this bot")
)

// UpdateHandler processes one inbound event for a running session.
type UpdateHandler func(ctx context.Context, upd gateway.Update)

// HandlerFactory builds the event handler for a freshly started
// session.
type HandlerFactory func(s *Session) UpdateHandler

// Session is a live clone runtime: the connected gateway session plus
// the goroutine draining its event stream.
type Session struct {
	TenantID int64

	gw     gateway.Session
	cancel context.CancelFunc
	done   chan struct{}
}

// Gateway returns the session's connection to the messaging network.
func (s *Session) Gateway() gateway.Session {
	return s.gw
}

// Option configures the Manager.
type Option func(*Manager)

// WithElevated marks user ids that may delete any tenant.
func WithElevated(ids []int64) Option {
	return func(m *Manager) {
		for _, id := range ids {
			m.elevated[id] = true
		}
	}
}

// WithLogger sets the manager's log entry.
func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// Manager registers, starts, stops and deletes clone sessions against
// the tenant registry. At any instant the active map holds at most one
// session per tenant id.
type Manager struct {
	mu     sync.Mutex
	active map[int64]*Session

	gw       gateway.Gateway
	reg      *store.Store
	handler  HandlerFactory
	elevated map[int64]bool
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. handler is invoked once per started
// session to build its event handler.
func NewManager(gw gateway.Gateway, reg *store.Store, handler HandlerFactory, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		active:   make(map[int64]*Session),
		gw:       gw,
		reg:      reg,
		handler:  handler,
		elevated: make(map[int64]bool),
		log:      logrus.WithField("component", "fleet"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterAndStart validates the credential, persists a tenant record
// with default settings and brings the clone online. The registry is
// never touched when the credential is invalid.
func (m *Manager) RegisterAndStart(ctx context.Context, credential string, ownerID int64) (*store.TenantRecord, error) {
	sess, err := m.gw.Connect(ctx, credential)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	existing, err := m.reg.GetByCredential(credential)
	if err != nil {
		sess.Close()
		return nil, err
	}
	if existing != nil {
		sess.Close()
		return nil, ErrDuplicateTenant
	}

	info := sess.Info()
	rec := &store.TenantRecord{
		TenantID:    info.ID,
		OwnerID:     ownerID,
		Credential:  credential,
		DisplayName: info.DisplayName,
		Handle:      info.Username,
		Active:      true,
		CreatedAt:   time.Now(),
		Settings:    store.DefaultSettings(),
	}
	if err := m.reg.Upsert(rec); err != nil {
		sess.Close()
		return nil, err
	}

	m.start(rec.TenantID, sess)
	m.log.WithFields(logrus.Fields{
		"tenant": rec.TenantID,
		"handle": rec.Handle,
		"owner":  ownerID,
	}).Info("clone registered")
	return rec, nil
}

// start records the session in the active map and spawns its event
// loop. If a session for the tenant already exists the new connection
// is closed and the existing session kept.
func (m *Manager) start(tenantID int64, gw gateway.Session) *Session {
	m.mu.Lock()
	if existing, ok := m.active[tenantID]; ok {
		m.mu.Unlock()
		gw.Close()
		return existing
	}

	ctx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		TenantID: tenantID,
		gw:       gw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.active[tenantID] = s
	m.mu.Unlock()

	handle := m.handler(s)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(s.done)
		for upd := range gw.Updates(ctx) {
			handle(ctx, upd)
		}
	}()
	return s
}

// Stop tears down the tenant's session. Stopping a tenant that is not
// running is a no-op.
func (m *Manager) Stop(tenantID int64) {
	m.mu.Lock()
	s, ok := m.active[tenantID]
	if ok {
		delete(m.active, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	<-s.done
	s.gw.Close()
	m.log.WithField("tenant", tenantID).Info("clone stopped")
}

// Delete stops the tenant and removes its record. Only the owner or an
// elevated admin may delete.
func (m *Manager) Delete(ctx context.Context, tenantID, requesterID int64) error {
	rec, err := m.reg.Get(tenantID)
	if err != nil {
		return err
	}
	if rec == nil {
		m.Stop(tenantID)
		return nil
	}
	if rec.OwnerID != requesterID && !m.elevated[requesterID] {
		return ErrNotOwner
	}

	// Stop before deleting the record so a zombie session never
	// answers for a tenant that is already gone.
	m.Stop(tenantID)
	if err := m.reg.Delete(tenantID); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"tenant":    tenantID,
		"requester": requesterID,
	}).Info("clone deleted")
	return nil
}

// RestartAll brings every active tenant back online, typically after a
// process restart. A failure for one tenant is logged and skipped; it
// never aborts the rest of the batch.
func (m *Manager) RestartAll(ctx context.Context) (started, failed int) {
	recs, err := m.reg.ListActive()
	if err != nil {
		m.log.WithError(err).Error("restart: listing active tenants failed")
		return 0, 0
	}

	for _, rec := range recs {
		if m.Running(rec.TenantID) {
			continue
		}
		sess, err := m.gw.Connect(ctx, rec.Credential)
		if err != nil {
			failed++
			m.log.WithError(err).WithFields(logrus.Fields{
				"tenant": rec.TenantID,
				"handle": rec.Handle,
			}).Warn("restart: clone failed to start")
			continue
		}
		m.start(rec.TenantID, sess)
		started++
	}

	m.log.WithFields(logrus.Fields{
		"started": started,
		"failed":  failed,
	}).Info("restart complete")
	return started, failed
}

// Running reports whether the tenant has a live session.
func (m *Manager) Running(tenantID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[tenantID]
	return ok
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Elevated reports whether the user may administer any tenant.
func (m *Manager) Elevated(userID int64) bool {
	return m.elevated[userID]
}

// Shutdown stops every session and waits for their event loops.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for id, s := range m.active {
		sessions = append(sessions, s)
		delete(m.active, id)
	}
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		<-s.done
		s.gw.Close()
	}
	m.wg.Wait()
	m.log.Info("fleet shut down")
}
