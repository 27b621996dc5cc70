package models

import "time"

// CartSlot mirrors one storefront session's serialized cart.
type CartSlot struct {
	SessionID string     `gorm:"column:session_id;type:varchar(64);primaryKey"`
	SlotKey   string     `gorm:"column:slot_key;type:varchar(64);primaryKey"`
	Payload   string     `gorm:"column:payload;type:text;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

func (CartSlot) TableName() string { return "cart_slots" }
