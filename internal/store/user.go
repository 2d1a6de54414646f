package store

import (
	"time"

	"gorm.io/gorm/clause"
)

// UserRecord tracks one end user of one tenant, so broadcasts and stats
// have a population to iterate. The primary bot uses tenant id 0.
type UserRecord struct {
	TenantID  int64     `gorm:"primaryKey;column:tenant_id"`
	UserID    int64     `gorm:"primaryKey;column:user_id"`
	FirstSeen time.Time `gorm:"column:first_seen"`
}

// TableName specifies the table name for GORM.
func (UserRecord) TableName() string {
	return "users"
}

// TouchUser records that userID talked to the tenant. Idempotent.
func (s *Store) TouchUser(tenantID, userID int64) error {
	rec := UserRecord{TenantID: tenantID, UserID: userID, FirstSeen: time.Now()}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	return wrap("touch user", err)
}

// ListUsers returns the ids of every user known to the tenant.
func (s *Store) ListUsers(tenantID int64) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&UserRecord{}).
		Where("tenant_id = ?", tenantID).
		Order("first_seen").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, wrap("list users", err)
	}
	return ids, nil
}

// CountUsers returns the size of the tenant's user population.
func (s *Store) CountUsers(tenantID int64) (int64, error) {
	var n int64
	err := s.db.Model(&UserRecord{}).Where("tenant_id = ?", tenantID).Count(&n).Error
	if err != nil {
		return 0, wrap("count users", err)
	}
	return n, nil
}
