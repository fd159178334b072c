package model

import "time"

type Message struct {
	ID          string      `db:"id" json:"id"`
	FromUserID  int64       `db:"from_user_id" json:"fromUserId"`
	ToUserID    int64       `db:"to_user_id" json:"toUserId"`
	Content     string      `db:"content" json:"content"`
	Type        MessageType `db:"type" json:"type"`
	IsRead      bool        `db:"is_read" json:"isRead"`
	DeliveredAt *time.Time  `db:"delivered_at" json:"deliveredAt,omitempty"`
	ReadAt      *time.Time  `db:"read_at" json:"readAt,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

type CreateMessageParams struct {
	ID         string
	FromUserID int64
	ToUserID   int64
	Content    string
	Type       MessageType
}
