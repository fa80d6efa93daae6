// Package container opens a media source by path or URL and returns a
// demuxer for it.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zsiec/avsync/internal/container/mkv"
	"github.com/zsiec/avsync/internal/container/ts"
	"github.com/zsiec/avsync/internal/ingest/srt"
	"github.com/zsiec/avsync/internal/media"
)

// ErrUnknownFormat is returned when neither the scheme nor the extension
// identifies a supported container.
var ErrUnknownFormat = errors.New("container: unknown format")

// Demuxer is the common surface of the bundled demuxers.
type Demuxer interface {
	Streams() []media.StreamInfo
	ReadPacket(ctx context.Context) (media.Packet, error)
	Close() error
}

// Format names a container family.
type Format int

// Container families.
const (
	FormatUnknown Format = iota
	FormatMPEGTS
	FormatMatroska
)

func (f Format) String() string {
	switch f {
	case FormatMPEGTS:
		return "mpegts"
	case FormatMatroska:
		return "matroska"
	default:
		return "unknown"
	}
}

// Detect picks a format from a path or URL. srt:// sources always carry
// MPEG-TS.
func Detect(src string) Format {
	if strings.HasPrefix(src, "srt://") {
		return FormatMPEGTS
	}
	switch strings.ToLower(filepath.Ext(src)) {
	case ".ts", ".m2ts", ".mts":
		return FormatMPEGTS
	case ".mkv", ".webm", ".mka":
		return FormatMatroska
	}
	return FormatUnknown
}

// Open opens src, which is a file path or an srt:// URL. The returned
// demuxer owns the source and closes it on Close.
func Open(ctx context.Context, src string, log *slog.Logger) (Demuxer, error) {
	if log == nil {
		log = slog.Default()
	}
	format := Detect(src)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, src)
	}

	var (
		r   io.ReadCloser
		err error
	)
	if strings.HasPrefix(src, "srt://") {
		addr, streamID, perr := srt.ParseURL(src)
		if perr != nil {
			return nil, perr
		}
		r, err = srt.Dial(ctx, addr, streamID, log)
	} else {
		r, err = os.Open(src)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src, err)
	}

	d, err := OpenReader(ctx, r, format, src, log)
	if err != nil {
		r.Close()
		return nil, err
	}
	return d, nil
}

// OpenReader wraps an already open source. name is only used for logs.
func OpenReader(ctx context.Context, r io.Reader, format Format, name string, log *slog.Logger) (Demuxer, error) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("opening source", "source", name, "format", format.String())

	switch format {
	case FormatMPEGTS:
		opts := []ts.Option{}
		if strings.EqualFold(filepath.Ext(name), ".m2ts") || strings.EqualFold(filepath.Ext(name), ".mts") {
			opts = append(opts, ts.WithPacketSize(192))
		}
		return ts.Open(ctx, r, log, opts...)
	case FormatMatroska:
		return mkv.Open(ctx, r, log)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}
