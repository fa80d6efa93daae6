package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/avsync/internal/media"
)

// Components are the collaborators a session drives. Audio fields are
// required when AudioStream is set, video fields when VideoStream is set.
type Components struct {
	Demuxer Demuxer

	AudioStream  *media.StreamInfo
	AudioDecoder AudioDecoder
	Resampler    Resampler
	AudioFormat  AudioFormat

	VideoStream  *media.StreamInfo
	VideoDecoder VideoDecoder
	Converter    ColorConverter
	Surface      Surface

	Timer Timer
	// Now overrides the wall clock, for tests.
	Now func() time.Time
	// OnEOF is called once when the container first reports end of stream.
	OnEOF func()

	Logger *slog.Logger
}

// Session owns the queues, clocks and workers of one playback.
type Session struct {
	log  *slog.Logger
	cfg  Config
	deps Components
	quit *Quit
	now  func() time.Time

	stats counters

	audioQ   *PacketQueue
	videoQ   *PacketQueue
	pictures *PictureQueue

	demux     *DemuxLoop
	audio     *AudioPipeline
	video     *VideoLoop
	scheduler *Scheduler

	// wallStart anchors the reference clock when there is no audio stream.
	wallStart atomicFloat
}

// NewSession validates cfg and deps and wires the pipeline. Nothing runs
// until Run is called.
func NewSession(cfg Config, deps Components) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Demuxer == nil {
		return nil, errors.New("playback: demuxer is required")
	}
	if deps.AudioStream == nil && deps.VideoStream == nil {
		return nil, ErrNoStreams
	}
	if deps.Timer == nil {
		return nil, errors.New("playback: timer is required")
	}
	if deps.AudioStream != nil {
		if deps.AudioDecoder == nil || deps.Resampler == nil {
			return nil, errors.New("playback: audio stream needs a decoder and a resampler")
		}
		if deps.AudioFormat.BytesPerSecond() <= 0 {
			return nil, fmt.Errorf("playback: invalid audio device format %+v", deps.AudioFormat)
		}
	}
	if deps.VideoStream != nil {
		if deps.VideoDecoder == nil || deps.Converter == nil || deps.Surface == nil {
			return nil, errors.New("playback: video stream needs a decoder, a converter and a surface")
		}
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		log:  log.With("component", "session"),
		cfg:  cfg,
		deps: deps,
		quit: NewQuit(),
		now:  now,
	}

	s.demux = newDemuxLoop(log, cfg, s.quit, deps.Demuxer, &s.stats)
	s.demux.OnEOF = deps.OnEOF

	ref := s.wallClock
	if deps.AudioStream != nil {
		s.audioQ = NewPacketQueue(s.quit)
		clock := NewAudioClock(deps.AudioFormat.BytesPerSecond())
		s.audio = newAudioPipeline(log, cfg, s.audioQ, deps.AudioDecoder, deps.Resampler, clock, &s.stats)
		s.demux.addRoute(deps.AudioStream.Index, s.audioQ, cfg.AudioQueueBytes, func() { s.stats.audioQueued.Add(1) })
		ref = s.audio.Clock
	}
	if deps.VideoStream != nil {
		s.videoQ = NewPacketQueue(s.quit)
		s.pictures = NewPictureQueue(cfg.PictureQueueSize, s.quit)
		fd := deps.VideoStream.FrameDuration.Seconds()
		if fd <= 0 {
			fd = cfg.InitialFrameDelay.Seconds()
		}
		s.video = newVideoLoop(log, s.videoQ, deps.VideoDecoder, deps.Converter, s.pictures, NewVideoClock(fd), &s.stats)
		s.demux.addRoute(deps.VideoStream.Index, s.videoQ, cfg.VideoQueueBytes, func() { s.stats.videoQueued.Add(1) })
	}

	s.scheduler = newScheduler(log, cfg, deps.Timer, now, s.pictures, ref, deps.Surface, s.quit, &s.stats)
	return s, nil
}

// Run starts the demux and video goroutines and arms the scheduler. It
// returns once every worker has exited: nil after Cancel or ctx ending, or
// the first fatal error, which also cancels the session.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := s.quit.Context(ctx)
	defer cancel()

	s.wallStart.Store(seconds(s.now()))
	s.scheduler.Start()

	s.log.Info("session started",
		"audio", streamLabel(s.deps.AudioStream),
		"video", streamLabel(s.deps.VideoStream))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.fail(s.demux.Run(gctx))
	})
	if s.video != nil {
		g.Go(func() error {
			return s.fail(s.video.Run(gctx))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.quit.Cancel()
		return nil
	})

	err := g.Wait()
	s.scheduler.Stop()
	if s.audioQ != nil {
		s.audioQ.Flush()
	}
	if s.videoQ != nil {
		s.videoQ.Flush()
	}

	if err != nil {
		s.log.Debug("session failed", "error", err)
		return err
	}
	s.log.Info("session stopped")
	return nil
}

func (s *Session) fail(err error) error {
	if err != nil {
		s.quit.CancelWithCause(err)
	}
	return err
}

// Cancel stops the session. It is idempotent and safe from any goroutine.
func (s *Session) Cancel() {
	s.quit.Cancel()
}

// Done is closed once the session is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.quit.Done()
}

// Refresh runs one scheduler step. Hosts normally never call it directly:
// Run arms it through the Timer.
func (s *Session) Refresh() {
	s.scheduler.Refresh()
}

// FillAudio is the audio device callback. Without an audio stream it plays
// silence.
func (s *Session) FillAudio(buf []byte) {
	if s.audio == nil {
		clear(buf)
		return
	}
	s.audio.Fill(buf)
}

// LastDecision returns the outcome of the most recent scheduler step.
func (s *Session) LastDecision() Decision {
	return s.scheduler.LastDecision()
}

// Close releases the demuxer and decoders. Call it after Run returns.
func (s *Session) Close() error {
	var errs []error
	if err := s.deps.Demuxer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing demuxer: %w", err))
	}
	if s.deps.AudioDecoder != nil {
		if err := s.deps.AudioDecoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audio decoder: %w", err))
		}
	}
	if s.deps.VideoDecoder != nil {
		if err := s.deps.VideoDecoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing video decoder: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the session counters and queue depths.
func (s *Session) Stats() Stats {
	st := s.stats.snapshot()
	if s.audioQ != nil {
		st.AudioQueueBytes = s.audioQ.Size()
		st.AudioClock = s.audio.Clock()
	}
	if s.videoQ != nil {
		st.VideoQueueBytes = s.videoQ.Size()
		st.PictureQueueLen = s.pictures.Len()
	}
	st.LastVideoPTS = s.scheduler.LastPTS()
	return st
}

// wallClock is the reference clock of a video-only session: seconds since
// Run started.
func (s *Session) wallClock() float64 {
	return seconds(s.now()) - s.wallStart.Load()
}

func streamLabel(si *media.StreamInfo) string {
	if si == nil {
		return "none"
	}
	return si.String()
}
