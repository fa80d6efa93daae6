package playback

import (
	"fmt"
	"time"
)

// Defaults carried over from the reference player.
const (
	DefaultAudioQueueBytes   = 5 * 16 * 1024
	DefaultVideoQueueBytes   = 5 * 256 * 1024
	DefaultPictureQueueSize  = 1
	DefaultSyncThreshold     = 0.01 // seconds
	DefaultNoSyncThreshold   = 10.0 // seconds
	DefaultMinRefreshDelay   = 10 * time.Millisecond
	DefaultNoVideoRefresh    = 100 * time.Millisecond
	DefaultEmptyQueuePoll    = time.Millisecond
	DefaultBackpressurePoll  = 10 * time.Millisecond
	DefaultEOFIdle           = 100 * time.Millisecond
	DefaultInitialFrameDelay = 40 * time.Millisecond
	DefaultAudioSilenceBytes = 1024
)

// Config holds the tunables of a playback session. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// AudioQueueBytes and VideoQueueBytes are the admission ceilings the
	// demux loop throttles against. A single packet larger than the ceiling
	// is still admitted.
	AudioQueueBytes int
	VideoQueueBytes int

	// PictureQueueSize is the number of decoded pictures buffered ahead of
	// presentation.
	PictureQueueSize int

	// SyncThreshold is the minimum correction window in seconds;
	// NoSyncThreshold is the A/V difference beyond which no correction is
	// attempted.
	SyncThreshold   float64
	NoSyncThreshold float64

	MinRefreshDelay   time.Duration
	NoVideoRefresh    time.Duration
	EmptyQueuePoll    time.Duration
	BackpressurePoll  time.Duration
	EOFIdle           time.Duration
	InitialFrameDelay time.Duration

	// AudioSilenceBytes is how much silence a failed fill cycle substitutes.
	AudioSilenceBytes int
}

// DefaultConfig returns the reference player's settings.
func DefaultConfig() Config {
	return Config{
		AudioQueueBytes:   DefaultAudioQueueBytes,
		VideoQueueBytes:   DefaultVideoQueueBytes,
		PictureQueueSize:  DefaultPictureQueueSize,
		SyncThreshold:     DefaultSyncThreshold,
		NoSyncThreshold:   DefaultNoSyncThreshold,
		MinRefreshDelay:   DefaultMinRefreshDelay,
		NoVideoRefresh:    DefaultNoVideoRefresh,
		EmptyQueuePoll:    DefaultEmptyQueuePoll,
		BackpressurePoll:  DefaultBackpressurePoll,
		EOFIdle:           DefaultEOFIdle,
		InitialFrameDelay: DefaultInitialFrameDelay,
		AudioSilenceBytes: DefaultAudioSilenceBytes,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.AudioQueueBytes <= 0:
		return fmt.Errorf("audio queue ceiling must be positive, got %d", c.AudioQueueBytes)
	case c.VideoQueueBytes <= 0:
		return fmt.Errorf("video queue ceiling must be positive, got %d", c.VideoQueueBytes)
	case c.PictureQueueSize < 1:
		return fmt.Errorf("picture queue size must be at least 1, got %d", c.PictureQueueSize)
	case c.SyncThreshold <= 0:
		return fmt.Errorf("sync threshold must be positive, got %v", c.SyncThreshold)
	case c.NoSyncThreshold <= c.SyncThreshold:
		return fmt.Errorf("no-sync threshold %v must exceed sync threshold %v", c.NoSyncThreshold, c.SyncThreshold)
	case c.MinRefreshDelay <= 0 || c.NoVideoRefresh <= 0 || c.EmptyQueuePoll <= 0:
		return fmt.Errorf("scheduler intervals must be positive")
	case c.BackpressurePoll <= 0 || c.EOFIdle <= 0:
		return fmt.Errorf("demux intervals must be positive")
	case c.InitialFrameDelay <= 0:
		return fmt.Errorf("initial frame delay must be positive, got %v", c.InitialFrameDelay)
	case c.AudioSilenceBytes <= 0:
		return fmt.Errorf("audio silence size must be positive, got %d", c.AudioSilenceBytes)
	}
	return nil
}
