package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxbridge/signal-server-go/internal/config"
	"github.com/voxbridge/signal-server-go/internal/enhance"
	"github.com/voxbridge/signal-server-go/internal/media"
	"github.com/voxbridge/signal-server-go/internal/model"
	"github.com/voxbridge/signal-server-go/internal/repository"
	"github.com/voxbridge/signal-server-go/internal/storage"
)

// RecordingService wraps the remote media server and object storage into the
// recording lifecycle: pending -> recording -> processing -> completed |
// failed | no_recording. Nothing in here ever propagates an error to the
// signaling path; every failure lands on the call record instead.
type RecordingService struct {
	callRepo repository.CallRepository
	media    media.Controller
	store    storage.ObjectStore
	enhancer enhance.Enhancer
	settle   time.Duration
}

// NewRecordingService builds the orchestrator. enhancer may be nil, in which
// case artifacts are uploaded as retrieved.
func NewRecordingService(
	callRepo repository.CallRepository,
	mediaCtl media.Controller,
	store storage.ObjectStore,
	enhancer enhance.Enhancer,
	settle time.Duration,
) *RecordingService {
	return &RecordingService{
		callRepo: callRepo,
		media:    mediaCtl,
		store:    store,
		enhancer: enhancer,
		settle:   settle,
	}
}

// StreamID derives the remote stream identifier for a call. Deterministic so
// that start and stop agree without extra state.
func StreamID(callID string) string {
	return "rec-" + callID
}

// Start provisions the remote recording stream. Creation failure is not
// fatal: the media server auto-creates streams on first publish, so the
// stream id is persisted and the recording marked active either way.
func (s *RecordingService) Start(call *model.Call) {
	ctx, cancel := context.WithTimeout(context.Background(), config.MediaRequestTimeout)
	defer cancel()

	streamID := StreamID(call.ID)

	if err := s.media.CreateStream(ctx, streamID, true); err != nil {
		log.Warn().Err(err).
			Str("callId", call.ID).
			Str("streamId", streamID).
			Msg("create stream failed, relying on auto-create")
	}

	if err := s.callRepo.SetRecordingStarted(ctx, call.ID, streamID); err != nil {
		log.Error().Err(err).Str("callId", call.ID).Msg("failed to persist recording start")
		return
	}

	log.Info().
		Str("callId", call.ID).
		Str("streamId", streamID).
		Str("callType", string(call.CallType)).
		Msg("recording started")
}

// Stop finalizes the recording: stop the remote stream, wait out the settling
// interval for server-side transcoding, probe the candidate artifact names in
// order, optionally enhance, upload, and clean up the remote stream. The
// atomic claim up front guarantees only one of the competing stop triggers
// runs the sequence.
func (s *RecordingService) Stop(callID string) {
	ctx, cancel := context.WithTimeout(context.Background(), config.RecordingStopTimeout)
	defer cancel()

	call, err := s.callRepo.ClaimRecordingStop(ctx, callID)
	if err != nil {
		log.Error().Err(err).Str("callId", callID).Msg("failed to claim recording stop")
		return
	}
	if call == nil {
		// Another trigger already claimed the stop, or no recording ran.
		return
	}

	streamID := *call.MediaStreamID

	if err := s.media.StopStream(ctx, streamID); err != nil {
		// Stopping races the stream's own teardown; a failure here usually
		// means the stream is already gone.
		log.Warn().Err(err).Str("streamId", streamID).Msg("stop stream failed")
	}

	if !s.waitSettle(ctx) {
		s.fail(call.ID, "cancelled while waiting for artifact finalization")
		return
	}

	name, data := s.probeArtifacts(ctx, streamID, call.CallType)
	if data == nil {
		reason := fmt.Sprintf("no artifact found for stream %s after probing %d names",
			streamID, len(artifactCandidates(streamID, call.CallType)))
		if err := s.callRepo.SetRecordingNone(ctx, call.ID, reason); err != nil {
			log.Error().Err(err).Str("callId", call.ID).Msg("failed to persist no_recording")
		}
		log.Info().Str("callId", call.ID).Str("streamId", streamID).Msg("no recording artifact")
		s.cleanupStream(ctx, streamID)
		return
	}

	contentType := artifactContentType(call.CallType)
	data = s.enhanceArtifact(ctx, call.ID, data, contentType)

	key := fmt.Sprintf("recordings/%s/%s/%s%s",
		call.CallType, time.Now().UTC().Format("2006-01-02"), call.ID, artifactExt(call.CallType))

	url, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		log.Error().Err(err).Str("callId", call.ID).Str("key", key).Msg("recording upload failed")
		s.fail(call.ID, fmt.Sprintf("upload failed: %v", err))
		s.cleanupStream(ctx, streamID)
		return
	}

	if err := s.callRepo.SetRecordingCompleted(ctx, call.ID, url, key, int64(len(data))); err != nil {
		// No call row points at the uploaded object now; remove it rather
		// than leaking it into the bucket.
		log.Error().Err(err).Str("callId", call.ID).Msg("failed to persist recording completion")
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned recording object")
		}
		s.fail(call.ID, fmt.Sprintf("persist completion failed: %v", err))
		s.cleanupStream(ctx, streamID)
		return
	}

	log.Info().
		Str("callId", call.ID).
		Str("artifact", name).
		Str("key", key).
		Int("size", len(data)).
		Msg("recording completed")

	s.cleanupStream(ctx, streamID)
}

func (s *RecordingService) waitSettle(ctx context.Context) bool {
	if s.settle <= 0 {
		return true
	}

	timer := time.NewTimer(s.settle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// probeArtifacts tries the candidate names in order; the first retrieval that
// yields bytes wins. The remote service picks among several
// resolution-suffixed names depending on the source stream, so this list is a
// deliberate compatibility shim, not a guess.
func (s *RecordingService) probeArtifacts(ctx context.Context, streamID string, callType model.CallType) (string, []byte) {
	for _, name := range artifactCandidates(streamID, callType) {
		data, err := s.media.DownloadArtifact(ctx, streamID, name)
		if err != nil {
			log.Debug().Err(err).Str("streamId", streamID).Str("name", name).Msg("artifact probe miss")
			continue
		}
		if len(data) == 0 {
			continue
		}
		return name, data
	}
	return "", nil
}

func (s *RecordingService) enhanceArtifact(ctx context.Context, callID string, data []byte, contentType string) []byte {
	if s.enhancer == nil {
		return data
	}

	enhanced, err := s.enhancer.Enhance(ctx, data, contentType)
	if err != nil {
		log.Warn().Err(err).Str("callId", callID).Msg("enhancement failed, using original artifact")
		return data
	}
	return enhanced
}

func (s *RecordingService) fail(callID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.callRepo.SetRecordingFailed(ctx, callID, message); err != nil {
		log.Error().Err(err).Str("callId", callID).Msg("failed to persist recording failure")
	}
}

func (s *RecordingService) cleanupStream(ctx context.Context, streamID string) {
	if err := s.media.DeleteStream(ctx, streamID); err != nil {
		log.Warn().Err(err).Str("streamId", streamID).Msg("delete stream failed")
	}
}

func artifactCandidates(streamID string, callType model.CallType) []string {
	if callType == model.CallTypeVideo {
		return []string{
			streamID + ".mp4",
			streamID + "_1080p.mp4",
			streamID + "_720p.mp4",
			streamID + "_480p.mp4",
			streamID + "_360p.mp4",
		}
	}
	return []string{
		streamID + ".m4a",
		streamID + ".mp4",
		streamID + "_audio.m4a",
	}
}

func artifactExt(callType model.CallType) string {
	if callType == model.CallTypeVideo {
		return ".mp4"
	}
	return ".m4a"
}

func artifactContentType(callType model.CallType) string {
	if callType == model.CallTypeVideo {
		return "video/mp4"
	}
	return "audio/mp4"
}
