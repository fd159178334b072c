package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/voxbridge/signal-server-go/internal/model"
)

type CallRepository interface {
	Create(ctx context.Context, params model.CreateCallParams) (*model.Call, error)
	FindByID(ctx context.Context, id string) (*model.Call, error)
	MarkRinging(ctx context.Context, id string) error
	Accept(ctx context.Context, id string) (*model.Call, error)
	MarkRejected(ctx context.Context, id string) (*model.Call, error)
	MarkMissed(ctx context.Context, id string) (*model.Call, error)
	MarkEnded(ctx context.Context, id string) (*model.Call, error)
	FindActiveByParticipant(ctx context.Context, userID int64) ([]model.Call, error)
	FindMissedForUserSince(ctx context.Context, userID int64, since time.Time) ([]model.Call, error)
	FindByParticipant(ctx context.Context, userID int64, limit, offset int) ([]model.Call, error)
	CountByParticipant(ctx context.Context, userID int64) (int, error)

	SetOffer(ctx context.Context, id, sdp string) error
	SetAnswer(ctx context.Context, id, sdp string) error
	AppendICECandidate(ctx context.Context, id string, candidate []byte) error

	SetRecordingStarted(ctx context.Context, id, streamID string) error
	ClaimRecordingStop(ctx context.Context, id string) (*model.Call, error)
	SetRecordingCompleted(ctx context.Context, id, url, key string, size int64) error
	SetRecordingFailed(ctx context.Context, id, errorMessage string) error
	SetRecordingNone(ctx context.Context, id, reason string) error

	MarkStaleMissed(ctx context.Context, olderThan time.Duration) (int64, error)
}

type callRepo struct {
	db *sqlx.DB
}

func NewCallRepository(db *sqlx.DB) CallRepository {
	return &callRepo{db: db}
}

func (r *callRepo) Create(ctx context.Context, params model.CreateCallParams) (*model.Call, error) {
	var call model.Call
	err := r.db.GetContext(ctx, &call, `
		INSERT INTO calls (id, from_user_id, to_user_id, call_type, status, room_id, recording_status, ice_candidates)
		VALUES ($1, $2, $3, $4, 'initiated', $5, 'pending', '[]'::jsonb)
		RETURNING *
	`, params.ID, params.FromUserID, params.ToUserID, params.CallType, params.RoomID)
	if err != nil {
		return nil, err
	}
	return &call, nil
}

func (r *callRepo) FindByID(ctx context.Context, id string) (*model.Call, error) {
	var call model.Call
	err := r.db.GetContext(ctx, &call, `SELECT * FROM calls WHERE id = $1`, id)
	return HandleNotFound(&call, err)
}

func (r *callRepo) MarkRinging(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET status = 'ringing', updated_at = now()
		WHERE id = $1 AND status = 'initiated'
	`, id)
	return err
}

// Accept moves the call to accepted and stamps start_time. The status guard
// makes the transition a no-op when a timeout or disconnect already won.
func (r *callRepo) Accept(ctx context.Context, id string) (*model.Call, error) {
	var call model.Call
	err := r.db.GetContext(ctx, &call, `
		UPDATE calls SET
			status = 'accepted',
			start_time = now(),
			updated_at = now()
		WHERE id = $1 AND status IN ('initiated', 'ringing')
		RETURNING *
	`, id)
	return HandleNotFound(&call, err)
}

func (r *callRepo) MarkRejected(ctx context.Context, id string) (*model.Call, error) {
	return r.finish(ctx, id, "rejected", false)
}

func (r *callRepo) MarkMissed(ctx context.Context, id string) (*model.Call, error) {
	return r.finish(ctx, id, "missed", false)
}

func (r *callRepo) MarkEnded(ctx context.Context, id string) (*model.Call, error) {
	return r.finish(ctx, id, "ended", true)
}

// finish applies a terminal status with end_time stamped once. Duration is
// computed in the same statement, only when start_time is already present, so
// concurrent triggers can never compute it twice. fromAccepted widens the
// guard to calls that are already connected (end/disconnect); missed and
// rejected may only ever replace a call that never connected.
func (r *callRepo) finish(ctx context.Context, id, status string, fromAccepted bool) (*model.Call, error) {
	allowed := `('initiated', 'ringing')`
	if fromAccepted {
		allowed = `('initiated', 'ringing', 'accepted')`
	}

	var call model.Call
	err := r.db.GetContext(ctx, &call, `
		UPDATE calls SET
			status = $2,
			end_time = now(),
			duration_seconds = CASE
				WHEN start_time IS NOT NULL THEN EXTRACT(EPOCH FROM (now() - start_time))::bigint
				ELSE NULL
			END,
			updated_at = now()
		WHERE id = $1 AND status IN `+allowed+`
		RETURNING *
	`, id, status)
	return HandleNotFound(&call, err)
}

func (r *callRepo) FindActiveByParticipant(ctx context.Context, userID int64) ([]model.Call, error) {
	var calls []model.Call
	err := r.db.SelectContext(ctx, &calls, `
		SELECT * FROM calls
		WHERE (from_user_id = $1 OR to_user_id = $1)
		  AND status IN ('initiated', 'ringing', 'accepted')
		ORDER BY created_at ASC
	`, userID)
	return calls, err
}

func (r *callRepo) FindMissedForUserSince(ctx context.Context, userID int64, since time.Time) ([]model.Call, error) {
	var calls []model.Call
	err := r.db.SelectContext(ctx, &calls, `
		SELECT * FROM calls
		WHERE to_user_id = $1 AND status = 'missed' AND end_time > $2
		ORDER BY end_time ASC
	`, userID, since)
	return calls, err
}

func (r *callRepo) FindByParticipant(ctx context.Context, userID int64, limit, offset int) ([]model.Call, error) {
	var calls []model.Call
	err := r.db.SelectContext(ctx, &calls, `
		SELECT * FROM calls
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return calls, err
}

func (r *callRepo) CountByParticipant(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM calls WHERE from_user_id = $1 OR to_user_id = $1
	`, userID)
	return count, err
}

func (r *callRepo) SetOffer(ctx context.Context, id, sdp string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET offer_sdp = $2, updated_at = now() WHERE id = $1
	`, id, sdp)
	return err
}

func (r *callRepo) SetAnswer(ctx context.Context, id, sdp string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET answer_sdp = $2, updated_at = now() WHERE id = $1
	`, id, sdp)
	return err
}

func (r *callRepo) AppendICECandidate(ctx context.Context, id string, candidate []byte) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET
			ice_candidates = ice_candidates || $2::jsonb,
			updated_at = now()
		WHERE id = $1
	`, id, candidate)
	return err
}

func (r *callRepo) SetRecordingStarted(ctx context.Context, id, streamID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET
			media_stream_id = $2,
			recording_status = 'recording',
			updated_at = now()
		WHERE id = $1 AND recording_status = 'pending'
	`, id, streamID)
	return err
}

// ClaimRecordingStop atomically moves the recording to processing. Only one of
// the competing stop triggers (explicit end vs disconnect) gets the row back;
// the loser sees nil and must not touch the recording again.
func (r *callRepo) ClaimRecordingStop(ctx context.Context, id string) (*model.Call, error) {
	var call model.Call
	err := r.db.GetContext(ctx, &call, `
		UPDATE calls SET
			recording_status = 'processing',
			updated_at = now()
		WHERE id = $1 AND recording_status = 'recording' AND media_stream_id IS NOT NULL
		RETURNING *
	`, id)
	return HandleNotFound(&call, err)
}

func (r *callRepo) SetRecordingCompleted(ctx context.Context, id, url, key string, size int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET
			recording_status = 'completed',
			recording_url = $2,
			recording_key = $3,
			recording_size = $4,
			updated_at = now()
		WHERE id = $1 AND recording_status = 'processing'
	`, id, url, key, size)
	return err
}

func (r *callRepo) SetRecordingFailed(ctx context.Context, id, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET
			recording_status = 'failed',
			recording_error = $2,
			updated_at = now()
		WHERE id = $1 AND recording_status = 'processing'
	`, id, errorMessage)
	return err
}

func (r *callRepo) SetRecordingNone(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET
			recording_status = 'no_recording',
			recording_error = $2,
			updated_at = now()
		WHERE id = $1 AND recording_status = 'processing'
	`, id, reason)
	return err
}

// MarkStaleMissed is the sweeper's safety net for ring timers lost to a
// restart: anything still un-answered past the ring timeout becomes missed.
func (r *callRepo) MarkStaleMissed(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE calls SET
			status = 'missed',
			end_time = now(),
			updated_at = now()
		WHERE status IN ('initiated', 'ringing')
		  AND created_at < now() - ($1 * interval '1 second')
	`, int64(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
