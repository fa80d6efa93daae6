// Package playback is the synchronization core of the player. It decouples
// demultiplexing, decoding, and presentation into independently paced
// goroutines connected by two byte-bounded packet queues and one picture
// queue, and keeps video presentation converged on the audio clock.
//
// The pieces, leaf first:
//
//   - PacketQueue: FIFO of compressed packets bounded by payload bytes.
//   - AudioClock / VideoClock: reference and predicted presentation times.
//   - DemuxLoop: routes container packets into the per-stream queues.
//   - AudioPipeline: pull-driven fill callback for the audio device.
//   - VideoLoop: decodes into the PictureQueue.
//   - Scheduler: self-rescheduling timer callback that presents pictures.
//   - Quit: the shared cancellation signal every blocking wait observes.
//
// A Session wires them together for one playback.
package playback
