package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Visibility controls who a clone serves content to.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Int64Set is a set of user ids stored as a JSON array in a text column.
type Int64Set []int64

// Value implements driver.Valuer.
func (s Int64Set) Value() (driver.Value, error) {
	if s == nil {
		s = Int64Set{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

// Scan implements sql.Scanner.
func (s *Int64Set) Scan(v interface{}) error {
	switch data := v.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(data, s)
	case string:
		return json.Unmarshal([]byte(data), s)
	default:
		return fmt.Errorf("unsupported type %T for Int64Set", v)
	}
}

// Contains reports whether id is in the set.
func (s Int64Set) Contains(id int64) bool {
	for _, m := range s {
		if m == id {
			return true
		}
	}
	return false
}

// Settings is the per-tenant behavior configuration. Every field has a
// meaningful zero value, so a freshly created tenant works without any
// configuration.
type Settings struct {
	StartMessage      string   `gorm:"column:start_message"`
	StartPhoto        string   `gorm:"column:start_photo"`
	GateChannel       int64    `gorm:"column:gate_channel"`        // 0 = no membership gate
	AutoDeleteSeconds int      `gorm:"column:auto_delete_seconds"` // 0 = delivered content kept
	Moderators        Int64Set `gorm:"column:moderators;type:text"`
	Visibility        string   `gorm:"column:visibility"`
}

// DefaultSettings returns the settings a tenant is created with.
func DefaultSettings() Settings {
	return Settings{
		Moderators: Int64Set{},
		Visibility: VisibilityPublic,
	}
}

// TenantRecord is the persistent record of one clone bot.
type TenantRecord struct {
	TenantID    int64     `gorm:"primaryKey;column:tenant_id"`
	OwnerID     int64     `gorm:"column:owner_id;index"`
	Credential  string    `gorm:"column:credential;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name"`
	Handle      string    `gorm:"column:handle"`
	Active      bool      `gorm:"column:active;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	Settings    Settings  `gorm:"embedded;embeddedPrefix:set_"`
}

// TableName specifies the table name for GORM.
func (TenantRecord) TableName() string {
	return "tenants"
}

// Setting keys accepted by UpdateSetting. Anything else is rejected, a
// typo must never silently create an unknown column.
const (
	SettingStartMessage = "start_message"
	SettingStartPhoto   = "start_photo"
	SettingGateChannel  = "gate_channel"
	SettingAutoDelete   = "auto_delete_seconds"
	SettingModerators   = "moderators"
	SettingVisibility   = "visibility"
)

var settingColumns = map[string]string{
	SettingStartMessage: "set_start_message",
	SettingStartPhoto:   "set_start_photo",
	SettingGateChannel:  "set_gate_channel",
	SettingAutoDelete:   "set_auto_delete_seconds",
	SettingModerators:   "set_moderators",
	SettingVisibility:   "set_visibility",
}

// Upsert inserts rec, or merges its identity fields into an existing row
// with the same tenant id. Settings are only written on first insert so
// a re-registration never clobbers an admin's configuration. The whole
// operation is a single INSERT ... ON CONFLICT statement.
func (s *Store) Upsert(rec *TenantRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_id", "credential", "display_name", "handle", "active",
		}),
	}).Create(rec).Error
	return wrap("upsert tenant", err)
}

// Get returns the tenant record, or nil if no such tenant exists.
func (s *Store) Get(tenantID int64) (*TenantRecord, error) {
	var rec TenantRecord
	err := s.db.Where("tenant_id = ?", tenantID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get tenant", err)
	}
	return &rec, nil
}

// GetByCredential returns the tenant registered with the credential, or
// nil if the credential is unknown.
func (s *Store) GetByCredential(credential string) (*TenantRecord, error) {
	var rec TenantRecord
	err := s.db.Where("credential = ?", credential).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get tenant by credential", err)
	}
	return &rec, nil
}

// ListByOwner returns all tenants provisioned by ownerID.
func (s *Store) ListByOwner(ownerID int64) ([]TenantRecord, error) {
	var recs []TenantRecord
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at").Find(&recs).Error
	if err != nil {
		return nil, wrap("list tenants by owner", err)
	}
	return recs, nil
}

// ListActive returns all tenants that should have a live session.
func (s *Store) ListActive() ([]TenantRecord, error) {
	var recs []TenantRecord
	err := s.db.Where("active = ?", true).Order("created_at").Find(&recs).Error
	if err != nil {
		return nil, wrap("list active tenants", err)
	}
	return recs, nil
}

// UpdateSetting writes a single settings field as one atomic UPDATE.
// key must be one of the Setting* constants.
func (s *Store) UpdateSetting(tenantID int64, key string, value interface{}) error {
	column, ok := settingColumns[key]
	if !ok {
		return fmt.Errorf("store: unknown setting %q", key)
	}
	err := s.db.Model(&TenantRecord{}).
		Where("tenant_id = ?", tenantID).
		Update(column, value).Error
	return wrap("update setting "+key, err)
}

// AddModerator adds userID to the tenant's moderator set. Runs in a
// transaction so two concurrent adds cannot lose each other.
func (s *Store) AddModerator(tenantID, userID int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec TenantRecord
		if err := tx.Where("tenant_id = ?", tenantID).First(&rec).Error; err != nil {
			return err
		}
		if rec.Settings.Moderators.Contains(userID) {
			return nil
		}
		mods := append(rec.Settings.Moderators, userID)
		return tx.Model(&TenantRecord{}).
			Where("tenant_id = ?", tenantID).
			Update("set_moderators", mods).Error
	})
	return wrap("add moderator", err)
}

// ClearModerators empties the tenant's moderator set.
func (s *Store) ClearModerators(tenantID int64) error {
	return s.UpdateSetting(tenantID, SettingModerators, Int64Set{})
}

// SetActive flips the active flag.
func (s *Store) SetActive(tenantID int64, active bool) error {
	err := s.db.Model(&TenantRecord{}).
		Where("tenant_id = ?", tenantID).
		Update("active", active).Error
	return wrap("set active", err)
}

// Delete removes the tenant record and its user population.
func (s *Store) Delete(tenantID int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&TenantRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ?", tenantID).Delete(&UserRecord{}).Error
	})
	return wrap("delete tenant", err)
}
