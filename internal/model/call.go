package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type Call struct {
	ID              string          `db:"id" json:"id"`
	FromUserID      int64           `db:"from_user_id" json:"fromUserId"`
	ToUserID        int64           `db:"to_user_id" json:"toUserId"`
	CallType        CallType        `db:"call_type" json:"callType"`
	Status          CallStatus      `db:"status" json:"status"`
	RoomID          string          `db:"room_id" json:"roomId"`
	StartTime       *time.Time      `db:"start_time" json:"startTime,omitempty"`
	EndTime         *time.Time      `db:"end_time" json:"endTime,omitempty"`
	DurationSeconds *int64          `db:"duration_seconds" json:"durationSeconds,omitempty"`
	OfferSDP        *string         `db:"offer_sdp" json:"-"`
	AnswerSDP       *string         `db:"answer_sdp" json:"-"`
	ICECandidates   json.RawMessage `db:"ice_candidates" json:"-"`

	// Recording sub-record
	MediaStreamID   *string         `db:"media_stream_id" json:"mediaStreamId,omitempty"`
	RecordingStatus RecordingStatus `db:"recording_status" json:"recordingStatus"`
	RecordingURL    *string         `db:"recording_url" json:"recordingUrl,omitempty"`
	RecordingKey    *string         `db:"recording_key" json:"-"`
	RecordingSize   *int64          `db:"recording_size" json:"recordingSize,omitempty"`
	RecordingError  *string         `db:"recording_error" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateCallParams struct {
	ID         string
	FromUserID int64
	ToUserID   int64
	CallType   CallType
	RoomID     string
}

// OtherParticipant returns the participant id opposite to userID.
func (c *Call) OtherParticipant(userID int64) int64 {
	if c.FromUserID == userID {
		return c.ToUserID
	}
	return c.FromUserID
}

// HasParticipant reports whether userID is a party to the call.
func (c *Call) HasParticipant(userID int64) bool {
	return c.FromUserID == userID || c.ToUserID == userID
}

// RoomID derives the deterministic media room identifier for a call between
// two users. The participant component is order-independent so that both
// directions of the same pair land in the same room; the creation timestamp
// keeps successive calls between the same pair distinct.
func RoomID(fromUserID, toUserID int64, createdAt time.Time) string {
	lo, hi := fromUserID, toUserID
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("room:%d:%d:%d", lo, hi, createdAt.UnixMilli())
}
