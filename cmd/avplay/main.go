package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/avsync/internal/codec"
	"github.com/zsiec/avsync/internal/container"
	"github.com/zsiec/avsync/internal/container/ts"
	"github.com/zsiec/avsync/internal/host"
	"github.com/zsiec/avsync/internal/media"
	"github.com/zsiec/avsync/internal/playback"
	"github.com/zsiec/avsync/internal/surface"
)

var version = "dev"

type options struct {
	audioOut      string
	trace         string
	sampleRate    int
	channels      int
	deviceSamples int
	pictureQueue  int
	exitOnEOF     bool
	noAudio       bool
	noVideo       bool
	debug         bool
	showVersion   bool
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Println("avplay", version)
		return
	}

	level := slog.LevelInfo
	if opts.debug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, pflag.Arg(0), opts); err != nil {
		slog.Error("playback failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	pflag.StringVarP(&o.audioOut, "audio-out", "a", envOr("AVPLAY_AUDIO_OUT", ""), "Write device audio (raw S16LE) to this file, or - for stdout")
	pflag.StringVarP(&o.trace, "trace", "t", envOr("AVPLAY_TRACE", ""), "Write a presentation trace to this file")
	pflag.IntVar(&o.sampleRate, "sample-rate", envInt("AVPLAY_SAMPLE_RATE", 48000), "Audio device sample rate")
	pflag.IntVar(&o.channels, "channels", envInt("AVPLAY_CHANNELS", 2), "Audio device channels")
	pflag.IntVar(&o.deviceSamples, "device-samples", 1024, "Samples per channel in one audio device buffer")
	pflag.IntVar(&o.pictureQueue, "picture-queue", playback.DefaultPictureQueueSize, "Decoded pictures buffered ahead of presentation")
	pflag.BoolVarP(&o.exitOnEOF, "exit-on-eof", "e", false, "Stop once the source ends and all queues drain")
	pflag.BoolVar(&o.noAudio, "no-audio", false, "Ignore audio streams")
	pflag.BoolVar(&o.noVideo, "no-video", false, "Ignore video streams")
	pflag.BoolVarP(&o.debug, "debug", "d", false, "Enable debug logging")
	pflag.BoolVar(&o.showVersion, "version", false, "Print the version and exit")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "avplay - headless audio/video synchronised player\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [flags] <file.ts|file.mkv|file.webm|srt://host:port?streamid=name>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s --exit-on-eof movie.webm\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -a - movie.ts | ffplay -f s16le -ar 48000 -ac 2 -\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -t trace.bin srt://10.0.0.5:6000?streamid=live/cam1\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	return o
}

func run(ctx context.Context, src string, opts options) error {
	demux, err := container.Open(ctx, src, nil)
	if err != nil {
		return err
	}

	format := playback.AudioFormat{SampleRate: opts.sampleRate, Channels: opts.channels, Format: media.SampleFormatS16}
	loop := host.NewEventLoop(64, nil)
	logSurface := surface.NewLogSurface(nil)
	deps := playback.Components{
		Demuxer:     demux,
		AudioFormat: format,
		Timer:       loop,
		Surface:     logSurface,
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Debug("close error", "error", err)
			}
		}
	}()

	streams := demux.Streams()
	if s, ok := media.FirstOfKind(streams, media.KindAudio); ok && !opts.noAudio {
		dec, err := codec.NewAudioDecoder(s, nil)
		if err != nil {
			slog.Warn("audio stream not playable", "stream", s.String(), "error", err)
		} else {
			rs, err := codec.NewS16Resampler(format)
			if err != nil {
				closeComponents(playback.Components{Demuxer: demux, AudioDecoder: dec})
				return err
			}
			deps.AudioStream, deps.AudioDecoder, deps.Resampler = &s, dec, rs
		}
	}
	if s, ok := media.FirstOfKind(streams, media.KindVideo); ok && !opts.noVideo {
		dec, err := codec.NewVideoDecoder(s, nil)
		if err != nil {
			slog.Warn("video stream not playable", "stream", s.String(), "error", err)
		} else {
			deps.VideoStream, deps.VideoDecoder, deps.Converter = &s, dec, codec.RGBAConverter{}
		}
	}

	var trace *surface.TraceSurface
	if opts.trace != "" {
		f, err := os.Create(opts.trace)
		if err != nil {
			closeComponents(deps)
			return fmt.Errorf("creating trace: %w", err)
		}
		closers = append(closers, f)
		if trace, err = surface.NewTraceSurface(f, nil); err != nil {
			closeComponents(deps)
			return err
		}
		deps.Surface = surface.Multi{logSurface, trace}
	}

	var sink io.Writer
	switch opts.audioOut {
	case "":
	case "-":
		sink = os.Stdout
	default:
		f, err := os.Create(opts.audioOut)
		if err != nil {
			closeComponents(deps)
			return fmt.Errorf("creating audio output: %w", err)
		}
		closers = append(closers, f)
		sink = f
	}

	cfg := playback.DefaultConfig()
	cfg.PictureQueueSize = opts.pictureQueue

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eof := make(chan struct{})
	var eofOnce sync.Once
	deps.OnEOF = func() {
		eofOnce.Do(func() { close(eof) })
	}

	sess, err := playback.NewSession(cfg, deps)
	if err != nil {
		closeComponents(deps)
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Debug("close errors", "error", err)
		}
	}()

	slog.Info("avplay starting", "version", version, "source", src,
		"audio", streamLabel(deps.AudioStream), "video", streamLabel(deps.VideoStream))

	var device *host.PacedAudioDevice
	if deps.AudioStream != nil {
		if device, err = host.NewPacedAudioDevice(opts.deviceSamples*format.Channels*2, format.BytesPerSecond(), sink, nil); err != nil {
			return err
		}
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if device != nil {
		g.Go(func() error {
			return device.Run(gctx, sess.FillAudio)
		})
	}
	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx)
	})
	if opts.exitOnEOF {
		g.Go(func() error {
			return waitDrained(gctx, eof, sess, cancel)
		})
	}

	err = g.Wait()
	logSummary(sess.Stats(), time.Since(start), trace, deps.Demuxer)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitDrained cancels playback once the source has ended and every queue
// is empty.
func waitDrained(ctx context.Context, eof <-chan struct{}, sess *playback.Session, cancel context.CancelFunc) error {
	select {
	case <-ctx.Done():
		return nil
	case <-sess.Done():
		return nil
	case <-eof:
	}
	slog.Info("end of source, draining queues")
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case <-tick.C:
			st := sess.Stats()
			if st.AudioQueueBytes == 0 && st.VideoQueueBytes == 0 && st.PictureQueueLen == 0 {
				cancel()
				return nil
			}
		}
	}
}

func closeComponents(deps playback.Components) {
	closeLogged := func(what string, c io.Closer) {
		if err := c.Close(); err != nil {
			slog.Debug("close error", "component", what, "error", err)
		}
	}
	if deps.AudioDecoder != nil {
		closeLogged("audio decoder", deps.AudioDecoder)
	}
	if deps.VideoDecoder != nil {
		closeLogged("video decoder", deps.VideoDecoder)
	}
	closeLogged("demuxer", deps.Demuxer)
}

func logSummary(st playback.Stats, elapsed time.Duration, trace *surface.TraceSurface, demux playback.Demuxer) {
	attrs := []any{
		"elapsed", elapsed.Round(time.Millisecond),
		"audio_packets", st.AudioPacketsQueued,
		"video_packets", st.VideoPacketsQueued,
		"discarded", st.PacketsDiscarded,
		"audio_frames", st.AudioFramesOut,
		"audio_underruns", st.AudioUnderruns,
		"pictures_presented", st.PicturesPresented,
		"frames_caught_up", st.FramesCaughtUp,
		"frames_held", st.FramesHeld,
		"decode_errors", st.AudioDecodeErrors + st.VideoDecodeErrors,
		"audio_clock", strconv.FormatFloat(st.AudioClock, 'f', 3, 64),
		"last_video_pts", strconv.FormatFloat(st.LastVideoPTS, 'f', 3, 64),
	}
	if trace != nil {
		attrs = append(attrs, "trace_records", trace.Presented(), "trace_errors", trace.WriteErrors())
	}
	if d, ok := demux.(*ts.Demuxer); ok {
		cues, bad := d.Cues()
		packets, corrupt, dropped := d.Stats()
		attrs = append(attrs,
			"ts_packets", packets,
			"ts_corrupt", corrupt,
			"ts_dropped", dropped,
			"splice_cues", len(cues),
			"bad_cues", bad)
	}
	slog.Info("playback finished", attrs...)
}

func streamLabel(s *media.StreamInfo) string {
	if s == nil {
		return "none"
	}
	return s.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
