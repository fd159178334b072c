package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/voxbridge/signal-server-go/internal/errors"
	"github.com/voxbridge/signal-server-go/internal/hub"
	"github.com/voxbridge/signal-server-go/internal/model"
	"github.com/voxbridge/signal-server-go/internal/repository"
)

// Recorder is the recording orchestrator as seen by the call lifecycle.
// Both methods run in the background and never report errors back here.
type Recorder interface {
	Start(call *model.Call)
	Stop(callID string)
}

// CallService owns the call state machine: initiation, ring timeout, accept,
// reject, end and disconnect-triggered termination. Terminal transitions are
// conditional updates in the repository, so competing triggers (timer vs
// respond vs disconnect) resolve to exactly one winner; the losers see nil
// and only re-issue notifications.
type CallService struct {
	callRepo    repository.CallRepository
	userRepo    repository.UserRepository
	router      *SignalRouter
	recorder    Recorder
	ringTimeout time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCallService(
	callRepo repository.CallRepository,
	userRepo repository.UserRepository,
	router *SignalRouter,
	recorder Recorder,
	ringTimeout time.Duration,
) *CallService {
	return &CallService{
		callRepo:    callRepo,
		userRepo:    userRepo,
		router:      router,
		recorder:    recorder,
		ringTimeout: ringTimeout,
		timers:      make(map[string]*time.Timer),
	}
}

// CallPayload is the enriched call representation attached to every call
// notification.
type CallPayload struct {
	Call   *model.Call       `json:"call"`
	Caller model.Participant `json:"caller"`
	Callee model.Participant `json:"callee"`
}

type InitiateCallParams struct {
	ToUserID int64          `json:"toUserId"`
	CallType model.CallType `json:"callType"`
}

// Initiate creates the call, attempts invite delivery and arms the ring
// timer. The caller is confirmed with the enriched payload whether or not the
// recipient was reachable: an offline recipient still rings until the timer
// declares the call missed.
func (s *CallService) Initiate(ctx context.Context, fromUserID int64, params InitiateCallParams) (*model.Call, error) {
	if params.ToUserID == 0 {
		return nil, apperrors.MissingRequired("toUserId")
	}
	if !params.CallType.Valid() {
		return nil, apperrors.InvalidRequest("callType must be voice or video")
	}
	if params.ToUserID == fromUserID {
		return nil, apperrors.InvalidRequest("cannot call yourself")
	}

	caller, callee, err := s.participants(ctx, fromUserID, params.ToUserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	call, err := s.callRepo.Create(ctx, model.CreateCallParams{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   params.ToUserID,
		CallType:   params.CallType,
		RoomID:     model.RoomID(fromUserID, params.ToUserID, now),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	payload := CallPayload{Call: call, Caller: caller, Callee: callee}

	delivered := false
	if event, err := hub.NewEvent(hub.EventCallIncoming, payload); err == nil {
		delivered = s.router.Deliver(params.ToUserID, event)
	}

	// The recipient being offline does not short-circuit to missed: the call
	// keeps ringing and only the timer can declare it missed, which is what
	// feeds the missed-calls-on-reconnect path.
	if err := s.callRepo.MarkRinging(ctx, call.ID); err != nil {
		log.Error().Err(err).Str("callId", call.ID).Msg("failed to mark call ringing")
	}
	call.Status = model.CallStatusRinging

	if event, err := hub.NewEvent(hub.EventCallInitiated, payload); err == nil {
		s.router.Deliver(fromUserID, event)
	}

	s.armRingTimer(call.ID)

	log.Info().
		Str("callId", call.ID).
		Int64("fromUserId", fromUserID).
		Int64("toUserId", params.ToUserID).
		Str("callType", string(params.CallType)).
		Bool("inviteDelivered", delivered).
		Msg("call initiated")

	return call, nil
}

type RespondCallParams struct {
	CallID   string             `json:"callId"`
	Response model.CallResponse `json:"response"`
}

// Respond applies accept or reject. Accepting stamps startTime and kicks off
// the recording in the background; recording failures can never prevent the
// call from connecting. A response that lost the race against a concurrent
// terminal transition is acknowledged without mutating anything.
func (s *CallService) Respond(ctx context.Context, userID int64, params RespondCallParams) error {
	if params.CallID == "" {
		return apperrors.MissingRequired("callId")
	}
	if !params.Response.Valid() {
		return apperrors.InvalidRequest("response must be accept or reject")
	}

	s.cancelRingTimer(params.CallID)

	call, err := s.callRepo.FindByID(ctx, params.CallID)
	if err != nil {
		return apperrors.Database(err)
	}
	if call == nil {
		return apperrors.NotFound("call")
	}
	if !call.HasParticipant(userID) {
		return apperrors.InvalidRequest("not a participant of this call")
	}

	var updated *model.Call
	if params.Response == model.CallResponseAccept {
		updated, err = s.callRepo.Accept(ctx, call.ID)
	} else {
		updated, err = s.callRepo.MarkRejected(ctx, call.ID)
	}
	if err != nil {
		return apperrors.Database(err)
	}

	if updated == nil {
		// Already terminal: acknowledge with current state, mutate nothing.
		log.Info().
			Str("callId", call.ID).
			Str("status", string(call.Status)).
			Str("response", string(params.Response)).
			Msg("response after terminal state, acknowledging only")
		s.notifyResponse(ctx, call, params.Response, userID)
		return nil
	}

	if params.Response == model.CallResponseAccept {
		go s.recorder.Start(updated)
	}

	s.notifyResponse(ctx, updated, params.Response, userID)

	log.Info().
		Str("callId", updated.ID).
		Str("response", string(params.Response)).
		Msg("call responded")

	return nil
}

type EndCallParams struct {
	CallID string `json:"callId"`
}

// End terminates the call. The stop-recording trigger is fired at most once
// per call even when End races a disconnect; the recorder's atomic claim is
// the arbiter.
func (s *CallService) End(ctx context.Context, userID int64, params EndCallParams) error {
	if params.CallID == "" {
		return apperrors.MissingRequired("callId")
	}

	s.cancelRingTimer(params.CallID)

	call, err := s.callRepo.FindByID(ctx, params.CallID)
	if err != nil {
		return apperrors.Database(err)
	}
	if call == nil {
		return apperrors.NotFound("call")
	}
	if !call.HasParticipant(userID) {
		return apperrors.InvalidRequest("not a participant of this call")
	}

	updated, err := s.callRepo.MarkEnded(ctx, call.ID)
	if err != nil {
		return apperrors.Database(err)
	}

	if updated == nil {
		// Lost the race against another terminal trigger. Still acknowledge.
		s.notifyEnded(ctx, call, userID)
		return nil
	}

	if updated.MediaStreamID != nil {
		go s.recorder.Stop(updated.ID)
	}

	s.notifyEnded(ctx, updated, userID)

	log.Info().
		Str("callId", updated.ID).
		Int64("endedBy", userID).
		Msg("call ended")

	return nil
}

// HandleDisconnect treats a dropped connection as a first-class terminal
// trigger: every call the user still participates in is ended, with the same
// duration and recording semantics as an explicit end.
func (s *CallService) HandleDisconnect(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls, err := s.callRepo.FindActiveByParticipant(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("failed to load active calls on disconnect")
		return
	}

	for i := range calls {
		call := &calls[i]
		s.cancelRingTimer(call.ID)

		updated, err := s.callRepo.MarkEnded(ctx, call.ID)
		if err != nil {
			log.Error().Err(err).Str("callId", call.ID).Msg("failed to end call on disconnect")
			continue
		}
		if updated == nil {
			continue
		}

		if updated.MediaStreamID != nil {
			go s.recorder.Stop(updated.ID)
		}

		if payload, err := s.payload(ctx, updated); err == nil {
			if event, err := hub.NewEvent(hub.EventCallEnded, payload); err == nil {
				s.router.Deliver(updated.OtherParticipant(userID), event)
			}
		}

		log.Info().
			Str("callId", updated.ID).
			Int64("userId", userID).
			Msg("call ended by disconnect")
	}

	if err := s.userRepo.TouchLastSeen(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("userId", userID).Msg("failed to touch last seen")
	}
}

// NotifyMissedCalls pushes the calls a user missed since their previous
// session as one batch, right after the connection registers.
func (s *CallService) NotifyMissedCalls(ctx context.Context, userID int64, since time.Time) {
	calls, err := s.callRepo.FindMissedForUserSince(ctx, userID, since)
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("failed to load missed calls")
		return
	}
	if len(calls) == 0 {
		return
	}

	event, err := hub.NewEvent(hub.EventCallMissed, map[string]any{"calls": calls})
	if err != nil {
		return
	}
	s.router.Deliver(userID, event)

	log.Info().Int64("userId", userID).Int("count", len(calls)).Msg("missed calls notified")
}

// StopTimers cancels every pending ring timer, for shutdown.
func (s *CallService) StopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *CallService) armRingTimer(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers[callID] = time.AfterFunc(s.ringTimeout, func() {
		s.onRingTimeout(callID)
	})
}

// cancelRingTimer stops and removes the call's pending timer. An absent timer
// is a no-op; Stop on an already-fired timer is harmless because the timeout
// path re-checks the persisted status before transitioning.
func (s *CallService) cancelRingTimer(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[callID]; ok {
		timer.Stop()
		delete(s.timers, callID)
	}
}

func (s *CallService) onRingTimeout(callID string) {
	s.mu.Lock()
	delete(s.timers, callID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updated, err := s.callRepo.MarkMissed(ctx, callID)
	if err != nil {
		log.Error().Err(err).Str("callId", callID).Msg("failed to mark call missed")
		return
	}
	if updated == nil {
		// The call was answered or ended before the timer won. No-op.
		return
	}

	if payload, err := s.payload(ctx, updated); err == nil {
		if event, err := hub.NewEvent(hub.EventCallNoAnswer, payload); err == nil {
			s.router.Deliver(updated.FromUserID, event)
		}
	}

	log.Info().Str("callId", callID).Msg("call missed after ring timeout")
}

func (s *CallService) notifyResponse(ctx context.Context, call *model.Call, response model.CallResponse, responderID int64) {
	payload, err := s.payload(ctx, call)
	if err != nil {
		return
	}

	body := map[string]any{"response": response, "call": payload.Call, "caller": payload.Caller, "callee": payload.Callee}

	if event, err := hub.NewEvent(hub.EventCallResponse, body); err == nil {
		s.router.Deliver(responderID, event)
	}
	if event, err := hub.NewEvent(hub.EventCallResponded, body); err == nil {
		s.router.Deliver(call.OtherParticipant(responderID), event)
	}
}

func (s *CallService) notifyEnded(ctx context.Context, call *model.Call, endedBy int64) {
	payload, err := s.payload(ctx, call)
	if err != nil {
		return
	}

	if event, err := hub.NewEvent(hub.EventCallEnded, payload); err == nil {
		s.router.Deliver(call.OtherParticipant(endedBy), event)
		s.router.Deliver(endedBy, event)
	}
}

func (s *CallService) payload(ctx context.Context, call *model.Call) (CallPayload, error) {
	caller, callee, err := s.participants(ctx, call.FromUserID, call.ToUserID)
	if err != nil {
		log.Warn().Err(err).Str("callId", call.ID).Msg("failed to enrich call payload")
		return CallPayload{}, err
	}
	return CallPayload{Call: call, Caller: caller, Callee: callee}, nil
}

func (s *CallService) participants(ctx context.Context, fromUserID, toUserID int64) (model.Participant, model.Participant, error) {
	from, err := s.userRepo.FindByID(ctx, fromUserID)
	if err != nil {
		return model.Participant{}, model.Participant{}, apperrors.Database(err)
	}
	if from == nil {
		return model.Participant{}, model.Participant{}, apperrors.NotFound("caller")
	}

	to, err := s.userRepo.FindByID(ctx, toUserID)
	if err != nil {
		return model.Participant{}, model.Participant{}, apperrors.Database(err)
	}
	if to == nil {
		return model.Participant{}, model.Participant{}, apperrors.NotFound("recipient")
	}

	return from.Participant(), to.Participant(), nil
}
