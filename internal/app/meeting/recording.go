package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
)

// recording holds the job and the in-flight driver. gen identifies the
// current driver; a driver whose gen is stale drops its result.
type recording struct {
	job    domain.RecordingJob
	gen    uint64
	cancel context.CancelFunc
}

func (s *Session) Recording() domain.RecordingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.job
}

// StartRecording moves Idle to Starting and drives BeginRecording in the
// background. Starting or Recording is an idempotent success; Failed after a
// failed start is the operator retry.
func (s *Session) StartRecording(actor domain.ParticipantID) (domain.RecordingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return domain.RecordingJob{}, err
	}
	job := s.rec.job
	switch job.State {
	case domain.RecordingStarting, domain.RecordingRecording:
		return job, nil
	case domain.RecordingStopping:
		return job, fmt.Errorf("%w: recording is stopping", domain.ErrInvalidTransition)
	case domain.RecordingFailed:
		if job.FailedFrom == domain.RecordingStopping {
			return job, fmt.Errorf("%w: recording failed to stop, stop it first", domain.ErrInvalidTransition)
		}
	}
	if s.opts.Recorder == nil {
		return job, fmt.Errorf("%w: no recorder configured", domain.ErrExternalFailure)
	}

	id := job.ID
	if job.State != domain.RecordingFailed || id == "" {
		id = uuid.NewString()
	}
	s.rec.job = domain.RecordingJob{ID: id, State: domain.RecordingStarting}
	s.publishRecordingLocked()
	s.logger.Info().Str("job", id).Str("by", string(actor)).Msg("recording starting")
	s.armRecordingLocked(s.driveStart)
	return s.rec.job, nil
}

// StopRecording moves Recording to Stopping and drives EndRecording. A stop
// during Starting cancels the start and its retries. Like StartRecording it
// is idempotent: stopping while Idle or Stopping returns the job unchanged
// and publishes nothing.
func (s *Session) StopRecording(actor domain.ParticipantID) (domain.RecordingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(actor); err != nil {
		return domain.RecordingJob{}, err
	}
	job := &s.rec.job
	switch job.State {
	case domain.RecordingIdle, domain.RecordingStopping:
		return *job, nil
	case domain.RecordingStarting:
		s.disarmRecordingLocked()
		job.State = domain.RecordingStopping
		s.publishRecordingLocked()
		s.idleRecordingLocked()
		s.logger.Info().Str("job", job.ID).Msg("recording start cancelled")
		return *job, nil
	case domain.RecordingFailed:
		if job.FailedFrom != domain.RecordingStopping {
			s.idleRecordingLocked()
			return *job, nil
		}
	}

	job.State = domain.RecordingStopping
	job.Attempts = 0
	job.FailedFrom = ""
	job.Error = ""
	s.publishRecordingLocked()
	s.logger.Info().Str("job", job.ID).Str("by", string(actor)).Msg("recording stopping")
	handle := job.Handle
	s.armRecordingLocked(func(ctx context.Context, gen uint64) { s.driveStop(ctx, gen, handle) })
	return *job, nil
}

func (s *Session) armRecordingLocked(drive func(ctx context.Context, gen uint64)) {
	s.disarmRecordingLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.rec.cancel = cancel
	go drive(ctx, s.rec.gen)
}

// disarmRecordingLocked makes any in-flight driver stale.
func (s *Session) disarmRecordingLocked() {
	s.rec.gen++
	if s.rec.cancel != nil {
		s.rec.cancel()
		s.rec.cancel = nil
	}
}

func (s *Session) driveStart(ctx context.Context, gen uint64) {
	var handle string
	err := s.callWithRetries(ctx, gen, domain.RecordingStarting, func(actx context.Context) error {
		h, err := s.opts.Recorder.BeginRecording(actx, s.id)
		if err == nil {
			handle = h
		}
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.gen != gen {
		if handle != "" {
			go s.releaseOrphan(handle)
		}
		return
	}
	s.disarmRecordingLocked()
	if err != nil {
		s.failRecordingLocked(domain.RecordingStarting, err)
		return
	}
	now := s.opts.Now()
	job := &s.rec.job
	job.State = domain.RecordingRecording
	job.Handle = handle
	job.StartedAt = &now
	s.publishRecordingLocked()
	s.logger.Info().Str("job", job.ID).Str("handle", handle).Int("attempts", job.Attempts).Msg("recording started")
}

func (s *Session) driveStop(ctx context.Context, gen uint64, handle string) {
	err := s.callWithRetries(ctx, gen, domain.RecordingStopping, func(actx context.Context) error {
		return s.opts.Recorder.EndRecording(actx, handle)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.gen != gen {
		return
	}
	s.disarmRecordingLocked()
	if err != nil {
		s.failRecordingLocked(domain.RecordingStopping, err)
		return
	}
	s.idleRecordingLocked()
	s.logger.Info().Str("job", s.rec.job.ID).Int("attempts", s.rec.job.Attempts).Msg("recording stopped")
}

// callWithRetries runs fn with the ack timeout, retrying after each backoff
// step. Intermediate failures are only logged; the caller publishes the
// terminal outcome.
func (s *Session) callWithRetries(ctx context.Context, gen uint64, op domain.RecordingState, fn func(context.Context) error) error {
	backoff := s.opts.Recording.Backoff
	for attempt := 0; ; attempt++ {
		s.noteAttempt(gen, attempt+1)

		actx, cancel := context.WithTimeout(ctx, s.opts.Recording.AckTimeout)
		err := fn(actx)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timedOut {
			err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		s.logger.Warn().Err(err).Str("op", string(op)).Int("attempt", attempt+1).Msg("recorder call failed")

		if attempt >= len(backoff) {
			return fmt.Errorf("%w: %s gave up after %d attempts: %w", domain.ErrExternalFailure, op, attempt+1, err)
		}
		t := time.NewTimer(backoff[attempt])
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (s *Session) noteAttempt(gen uint64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.gen == gen {
		s.rec.job.Attempts = n
	}
}

func (s *Session) failRecordingLocked(from domain.RecordingState, err error) {
	job := &s.rec.job
	job.State = domain.RecordingFailed
	job.FailedFrom = from
	job.Error = err.Error()
	s.publishRecordingLocked()
	s.logger.Error().Err(err).Str("job", job.ID).Str("from", string(from)).Int("attempts", job.Attempts).Msg("recording failed")
}

func (s *Session) idleRecordingLocked() {
	now := s.opts.Now()
	job := &s.rec.job
	job.State = domain.RecordingIdle
	job.StoppedAt = &now
	job.FailedFrom = ""
	job.Error = ""
	s.publishRecordingLocked()
}

// teardownRecordingLocked brings the job back to Idle when the session ends.
// A held handle is released in the background.
func (s *Session) teardownRecordingLocked() {
	job := &s.rec.job
	if job.State == domain.RecordingIdle {
		return
	}
	s.disarmRecordingLocked()
	holdsHandle := job.State == domain.RecordingRecording ||
		job.State == domain.RecordingStopping ||
		(job.State == domain.RecordingFailed && job.FailedFrom == domain.RecordingStopping)
	if job.State == domain.RecordingRecording || job.State == domain.RecordingStarting {
		job.State = domain.RecordingStopping
		s.publishRecordingLocked()
	}
	if holdsHandle && job.Handle != "" {
		go s.releaseOrphan(job.Handle)
	}
	s.idleRecordingLocked()
}

func (s *Session) releaseOrphan(handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Recording.AckTimeout)
	defer cancel()
	if err := s.opts.Recorder.EndRecording(ctx, handle); err != nil {
		s.logger.Error().Err(err).Str("handle", handle).Msg("release recording handle")
		return
	}
	s.logger.Info().Str("handle", handle).Msg("recording handle released")
}

func (s *Session) publishRecordingLocked() {
	s.publish(domain.RecordingStateChanged{Job: s.rec.job})
}
