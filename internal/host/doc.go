// Package host provides the headless runtime a playback session needs: an
// event loop that runs timer callbacks on one goroutine, and an audio device
// that pulls samples at real-time rate.
package host
