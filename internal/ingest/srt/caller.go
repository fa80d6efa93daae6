package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// latencyNs is the SRT latency setting in nanoseconds (120ms).
const latencyNs = 120_000_000

// DefaultDialTimeout bounds how long Dial waits for the handshake.
const DefaultDialTimeout = 10 * time.Second

// ErrDialTimeout is returned when the handshake does not finish in time.
var ErrDialTimeout = errors.New("srt: dial timed out")

// dialer opens the raw connection. Tests replace it.
var dialer = func(addr, streamID string) (io.ReadCloser, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	cfg.StreamID = streamID
	conn, err := srtgo.Dial(addr, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Stats captures connection-level counters.
type Stats struct {
	BytesReceived int64
	ReadCount     int64
	Uptime        time.Duration
}

// Conn is a connected SRT caller. Reads are counted.
type Conn struct {
	log       *slog.Logger
	raw       io.ReadCloser
	addr      string
	startedAt time.Time

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	closed        atomic.Bool
}

// Dial connects to addr, announcing streamID, within DefaultDialTimeout or
// until ctx is done. If log is nil, slog.Default() is used.
func Dial(ctx context.Context, addr, streamID string, log *slog.Logger) (*Conn, error) {
	return dialTimeout(ctx, addr, streamID, DefaultDialTimeout, log)
}

func dialTimeout(ctx context.Context, addr, streamID string, timeout time.Duration, log *slog.Logger) (*Conn, error) {
	if addr == "" {
		return nil, fmt.Errorf("srt: address is required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller")
	log.Info("dialing", "address", addr, "stream_id", streamID)

	type dialResult struct {
		conn io.ReadCloser
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := dialer(addr, streamID)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("srt: dial %s: %w", addr, res.err)
		}
		log.Info("connected", "address", addr)
		return &Conn{log: log, raw: res.conn, addr: addr, startedAt: time.Now()}, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("%w after %s", ErrDialTimeout, timeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.raw.Read(p)
	if n > 0 {
		c.bytesReceived.Add(int64(n))
		c.readCount.Add(1)
	}
	if err != nil && c.closed.Load() {
		return n, io.EOF
	}
	return n, err
}

// Close closes the connection and logs its counters once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	st := c.Stats()
	c.log.Info("connection closed", "address", c.addr,
		"bytes", st.BytesReceived, "reads", st.ReadCount, "uptime_ms", st.Uptime.Milliseconds())
	return c.raw.Close()
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Stats {
	return Stats{
		BytesReceived: c.bytesReceived.Load(),
		ReadCount:     c.readCount.Load(),
		Uptime:        time.Since(c.startedAt),
	}
}

// ParseURL splits srt://host:port?streamid=name into a dial address and a
// stream ID. Without a streamid parameter the path is used, with any
// leading slash removed.
func ParseURL(raw string) (addr, streamID string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("srt: parsing %q: %w", raw, err)
	}
	if u.Scheme != "srt" {
		return "", "", fmt.Errorf("srt: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" || u.Port() == "" {
		return "", "", fmt.Errorf("srt: %q needs host:port", raw)
	}
	streamID = u.Query().Get("streamid")
	if streamID == "" {
		streamID = strings.TrimPrefix(u.Path, "/")
	}
	return u.Host, streamID, nil
}
