package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/voxbridge/signal-server-go/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindConversation(ctx context.Context, userID, peerID int64, limit, offset int) ([]model.Message, error)
	CountConversation(ctx context.Context, userID, peerID int64) (int, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkConversationRead(ctx context.Context, userID, peerID int64) (int64, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (id, from_user_id, to_user_id, content, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.ID, params.FromUserID, params.ToUserID, params.Content, params.Type)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindConversation(ctx context.Context, userID, peerID int64, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE (from_user_id = $1 AND to_user_id = $2)
		   OR (from_user_id = $2 AND to_user_id = $1)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, peerID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountConversation(ctx context.Context, userID, peerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE (from_user_id = $1 AND to_user_id = $2)
		   OR (from_user_id = $2 AND to_user_id = $1)
	`, userID, peerID)
	return count, err
}

func (r *messageRepo) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	return err
}

func (r *messageRepo) MarkConversationRead(ctx context.Context, userID, peerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = now()
		WHERE to_user_id = $1 AND from_user_id = $2 AND is_read = FALSE
	`, userID, peerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
