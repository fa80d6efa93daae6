package playback

import "errors"

var (
	// ErrCancelled is returned by blocking queue operations once the session
	// has been cancelled. Loops treat it as a clean exit.
	ErrCancelled = errors.New("playback: cancelled")

	// ErrEmpty is returned by a non-blocking Get on an empty queue.
	ErrEmpty = errors.New("playback: queue empty")

	// ErrDemux wraps hard read failures from the container. It is fatal to
	// the session.
	ErrDemux = errors.New("playback: demux failed")

	// ErrNoStreams is returned when a session is created without an audio or
	// a video stream.
	ErrNoStreams = errors.New("playback: no audio or video stream selected")
)
