package playback

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// SchedulerState is what a refresh found to do.
type SchedulerState int

// Scheduler states.
const (
	StateIdleNoStream SchedulerState = iota
	StateWaitingForPicture
	StatePresenting
	StateStopped
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdleNoStream:
		return "idle-no-stream"
	case StateWaitingForPicture:
		return "waiting-for-picture"
	case StatePresenting:
		return "presenting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Decision records the outcome of one refresh.
type Decision struct {
	State SchedulerState
	// PTS of the presented picture in seconds.
	PTS float64
	// Delay is the corrected inter-frame delay added to the frame timer.
	Delay float64
	// Diff is the picture PTS minus the reference clock.
	Diff float64
	// Next is how long until the next refresh.
	Next time.Duration
}

// Scheduler presents pictures against the reference clock. Refresh is a
// timer callback: it does one unit of work and re-arms itself through the
// host Timer, never sleeping, so the host goroutine stays responsive.
type Scheduler struct {
	log      *slog.Logger
	cfg      Config
	timer    Timer
	now      func() time.Time
	pictures *PictureQueue // nil when there is no video stream
	refClock func() float64
	surface  Surface
	quit     *Quit
	stats    *counters

	mu         sync.Mutex
	frameTimer float64 // absolute target time of the next presentation, seconds
	lastDelay  float64
	lastPTS    float64
	last       Decision
	stopped    bool
}

func newScheduler(log *slog.Logger, cfg Config, timer Timer, now func() time.Time, pics *PictureQueue, ref func() float64, surface Surface, quit *Quit, stats *counters) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		log:      log.With("component", "scheduler"),
		cfg:      cfg,
		timer:    timer,
		now:      now,
		pictures: pics,
		refClock: ref,
		surface:  surface,
		quit:     quit,
		stats:    stats,
	}
}

// Start anchors the frame timer to now and arms the first refresh after
// the initial frame delay.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.frameTimer = seconds(s.now())
	s.lastDelay = s.cfg.InitialFrameDelay.Seconds()
	s.mu.Unlock()

	s.timer.AfterFunc(s.cfg.InitialFrameDelay, s.Refresh)
}

// Stop prevents any further re-arming. A refresh already queued on the host
// becomes a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.last = Decision{State: StateStopped}
	s.mu.Unlock()
}

// LastDecision returns the outcome of the most recent refresh.
func (s *Scheduler) LastDecision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// LastPTS returns the PTS of the most recently presented picture.
func (s *Scheduler) LastPTS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPTS
}

// Refresh is the timer callback.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.quit.Cancelled() {
		s.stopped = true
		s.last = Decision{State: StateStopped}
		return
	}

	if s.pictures == nil {
		s.rearm(Decision{State: StateIdleNoStream, Next: s.cfg.NoVideoRefresh})
		return
	}

	pic, ok := s.pictures.Peek()
	if !ok {
		s.rearm(Decision{State: StateWaitingForPicture, Next: s.cfg.EmptyQueuePoll})
		return
	}

	delay := pic.PTS - s.lastPTS
	if delay <= 0 || delay >= 1.0 {
		// Implausible gap, most likely a timestamp discontinuity.
		delay = s.lastDelay
	}
	s.lastDelay = delay
	s.lastPTS = pic.PTS

	diff := pic.PTS - s.refClock()
	syncThreshold := math.Max(delay, s.cfg.SyncThreshold)
	if math.Abs(diff) < s.cfg.NoSyncThreshold {
		switch {
		case diff <= -syncThreshold:
			delay = 0
			s.stats.caughtUp.Add(1)
		case diff >= syncThreshold:
			delay = 2 * delay
			s.stats.held.Add(1)
		}
	}

	s.frameTimer += delay
	actual := s.frameTimer - seconds(s.now())
	if floor := s.cfg.MinRefreshDelay.Seconds(); actual < floor {
		actual = floor
	}

	s.rearm(Decision{
		State: StatePresenting,
		PTS:   pic.PTS,
		Delay: delay,
		Diff:  diff,
		Next:  time.Duration(math.Round(actual*1000)) * time.Millisecond,
	})

	s.surface.Present(pic)
	s.pictures.Pop()
	s.stats.picsPresented.Add(1)
}

func (s *Scheduler) rearm(d Decision) {
	s.last = d
	s.timer.AfterFunc(d.Next, s.Refresh)
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
