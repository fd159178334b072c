package model

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
	CallStatusFailed    CallStatus = "failed"
)

// IsTerminal reports whether a call can no longer change status.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusRejected, CallStatusEnded, CallStatusMissed, CallStatusFailed:
		return true
	}
	return false
}

type RecordingStatus string

const (
	RecordingStatusPending    RecordingStatus = "pending"
	RecordingStatusRecording  RecordingStatus = "recording"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusFailed     RecordingStatus = "failed"
	RecordingStatusNone       RecordingStatus = "no_recording"
)

type CallResponse string

const (
	CallResponseAccept CallResponse = "accept"
	CallResponseReject CallResponse = "reject"
)

func (r CallResponse) Valid() bool {
	return r == CallResponseAccept || r == CallResponseReject
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)
