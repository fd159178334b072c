package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/voxbridge/signal-server-go/internal/errors"
	"github.com/voxbridge/signal-server-go/internal/middleware"
	"github.com/voxbridge/signal-server-go/internal/model"
	"github.com/voxbridge/signal-server-go/internal/repository"
	"github.com/voxbridge/signal-server-go/internal/storage"
)

// recordingURLTTL bounds how long a handed-out recording link stays valid.
const recordingURLTTL = 15 * time.Minute

// HistoryHandler serves the REST side: conversation history, read receipts
// and the call log. Everything real-time goes over the websocket instead.
type HistoryHandler struct {
	messageRepo repository.MessageRepository
	callRepo    repository.CallRepository
	store       storage.ObjectStore
}

func NewHistoryHandler(messageRepo repository.MessageRepository, callRepo repository.CallRepository, store storage.ObjectStore) *HistoryHandler {
	return &HistoryHandler{
		messageRepo: messageRepo,
		callRepo:    callRepo,
		store:       store,
	}
}

// GetConversation handles GET /v1/conversations/{peerID}/messages
func (h *HistoryHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	peerID, err := parsePeerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pagination := ParsePagination(r)

	messages, err := h.messageRepo.FindConversation(r.Context(), user.ID, peerID, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Int64("userId", user.ID).Int64("peerId", peerID).Msg("failed to load conversation")
		writeError(w, apperrors.Database(err))
		return
	}

	total, err := h.messageRepo.CountConversation(r.Context(), user.ID, peerID)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    total,
		"limit":    pagination.Limit,
		"offset":   pagination.Offset,
	})
}

// MarkConversationRead handles POST /v1/conversations/{peerID}/read
func (h *HistoryHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	peerID, err := parsePeerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.messageRepo.MarkConversationRead(r.Context(), user.ID, peerID)
	if err != nil {
		log.Error().Err(err).Int64("userId", user.ID).Int64("peerId", peerID).Msg("failed to mark conversation read")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// GetCalls handles GET /v1/calls
func (h *HistoryHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	pagination := ParsePagination(r)

	calls, err := h.callRepo.FindByParticipant(r.Context(), user.ID, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Int64("userId", user.ID).Msg("failed to load call history")
		writeError(w, apperrors.Database(err))
		return
	}

	total, err := h.callRepo.CountByParticipant(r.Context(), user.ID)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calls":  calls,
		"total":  total,
		"limit":  pagination.Limit,
		"offset": pagination.Offset,
	})
}

// GetCall handles GET /v1/calls/{callID}
func (h *HistoryHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	callID := chi.URLParam(r, "callID")

	call, err := h.callRepo.FindByID(r.Context(), callID)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	if call == nil || !call.HasParticipant(user.ID) {
		writeError(w, apperrors.NotFound("call"))
		return
	}

	// The bucket is private; hand out a short-lived signed link instead of
	// the stored canonical URL.
	if call.RecordingStatus == model.RecordingStatusCompleted && call.RecordingKey != nil {
		url, err := h.store.PresignGet(r.Context(), *call.RecordingKey, recordingURLTTL)
		if err != nil {
			log.Warn().Err(err).Str("callId", call.ID).Msg("failed to presign recording url")
		} else {
			call.RecordingURL = &url
		}
	}

	writeJSON(w, http.StatusOK, call)
}

func parsePeerID(r *http.Request) (int64, error) {
	peerID, err := strconv.ParseInt(chi.URLParam(r, "peerID"), 10, 64)
	if err != nil || peerID <= 0 {
		return 0, apperrors.InvalidRequest("peerID must be a positive integer")
	}
	return peerID, nil
}
