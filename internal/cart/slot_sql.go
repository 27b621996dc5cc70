package cart

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casadeele/storefront/pkg/db/models"
)

// SQLSlots stores carts in the cart_slots table (Postgres or SQLite).
type SQLSlots struct {
	db  *gorm.DB
	key string
	ttl time.Duration
	now func() time.Time
}

func NewSQLSlots(db *gorm.DB, key string, ttl time.Duration) *SQLSlots {
	if key == "" {
		key = DefaultSlotKey
	}
	return &SQLSlots{db: db, key: key, ttl: ttl, now: time.Now}
}

func (s *SQLSlots) Slot(sessionID string) Slot {
	return sqlSlot{store: s, session: sessionID}
}

// PurgeExpired deletes slots whose expiry has passed.
func (s *SQLSlots) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", s.now().UTC()).
		Delete(&models.CartSlot{})
	return res.RowsAffected, res.Error
}

type sqlSlot struct {
	store   *SQLSlots
	session string
}

func (s sqlSlot) Read(ctx context.Context) ([]byte, error) {
	var row models.CartSlot
	err := s.store.db.WithContext(ctx).
		Where("session_id = ? AND slot_key = ?", s.session, s.store.key).
		Where("expires_at IS NULL OR expires_at > ?", s.store.now().UTC()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Payload), nil
}

func (s sqlSlot) Write(ctx context.Context, payload []byte) error {
	now := s.store.now().UTC()
	row := models.CartSlot{
		SessionID: s.session,
		SlotKey:   s.store.key,
		Payload:   string(payload),
		UpdatedAt: now,
	}
	if s.store.ttl > 0 {
		exp := now.Add(s.store.ttl)
		row.ExpiresAt = &exp
	}
	return s.store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at", "expires_at"}),
	}).Create(&row).Error
}
