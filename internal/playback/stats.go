package playback

import "sync/atomic"

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	AudioPacketsQueued int64 `json:"audioPacketsQueued"`
	VideoPacketsQueued int64 `json:"videoPacketsQueued"`
	PacketsDiscarded   int64 `json:"packetsDiscarded"`
	BackpressureWaits  int64 `json:"backpressureWaits"`
	EOFIdles           int64 `json:"eofIdles"`

	AudioDecodeErrors int64 `json:"audioDecodeErrors"`
	AudioFramesOut    int64 `json:"audioFramesOut"`
	AudioUnderruns    int64 `json:"audioUnderruns"`

	VideoDecodeErrors int64 `json:"videoDecodeErrors"`
	PicturesQueued    int64 `json:"picturesQueued"`
	PicturesPresented int64 `json:"picturesPresented"`
	FramesCaughtUp    int64 `json:"framesCaughtUp"`
	FramesHeld        int64 `json:"framesHeld"`

	AudioQueueBytes int     `json:"audioQueueBytes"`
	VideoQueueBytes int     `json:"videoQueueBytes"`
	PictureQueueLen int     `json:"pictureQueueLen"`
	AudioClock      float64 `json:"audioClock"`
	LastVideoPTS    float64 `json:"lastVideoPts"`
}

// counters are the live atomics behind Stats. Each field has one writer.
type counters struct {
	audioQueued   atomic.Int64
	videoQueued   atomic.Int64
	discarded     atomic.Int64
	backpressure  atomic.Int64
	eofIdles      atomic.Int64
	audioDecErr   atomic.Int64
	audioFrames   atomic.Int64
	audioUnderrun atomic.Int64
	videoDecErr   atomic.Int64
	picsQueued    atomic.Int64
	picsPresented atomic.Int64
	caughtUp      atomic.Int64
	held          atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		AudioPacketsQueued: c.audioQueued.Load(),
		VideoPacketsQueued: c.videoQueued.Load(),
		PacketsDiscarded:   c.discarded.Load(),
		BackpressureWaits:  c.backpressure.Load(),
		EOFIdles:           c.eofIdles.Load(),
		AudioDecodeErrors:  c.audioDecErr.Load(),
		AudioFramesOut:     c.audioFrames.Load(),
		AudioUnderruns:     c.audioUnderrun.Load(),
		VideoDecodeErrors:  c.videoDecErr.Load(),
		PicturesQueued:     c.picsQueued.Load(),
		PicturesPresented:  c.picsPresented.Load(),
		FramesCaughtUp:     c.caughtUp.Load(),
		FramesHeld:         c.held.Load(),
	}
}
