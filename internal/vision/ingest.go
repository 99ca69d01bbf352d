package vision

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/voxelware/aura/internal/observe"
)

const (
	// frameMagic prefixes every camera frame record.
	frameMagic = "VXL0"

	// MaxFramePayload caps a single JPEG payload.
	MaxFramePayload = 5 << 20

	// readTimeout bounds a single frame read; the camera streams continuously,
	// so a silent socket is a broken socket.
	readTimeout = 5 * time.Second

	// acceptTimeout bounds each accept wait so cancellation is noticed.
	acceptTimeout = 10 * time.Second

	// maxConsecutiveErrors is how many framing/read errors in a row are
	// tolerated before the camera stream is closed.
	maxConsecutiveErrors = 10
)

// Ingest reads length-prefixed JPEG frames from a TCP socket and pushes them
// to the recognition queue. One camera streams at a time; a slow recogniser
// costs dropped frames, never backpressure.
type Ingest struct {
	addr    string
	queue   *FrameQueue
	log     *slog.Logger
	metrics *observe.Metrics

	boundAddr atomic.Value // string
}

// NewIngest wires a frame ingest for the given listen address. metrics may be
// nil, in which case the process-wide default instruments are used.
func NewIngest(addr string, queue *FrameQueue, log *slog.Logger, metrics *observe.Metrics) *Ingest {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Ingest{addr: addr, queue: queue, log: log, metrics: metrics}
}

// Addr returns the bound listen address once Run is listening, else "".
func (in *Ingest) Addr() string {
	if v := in.boundAddr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Run accepts camera connections until ctx is cancelled. Each connection is
// served to completion before the next accept; the glasses have one camera.
func (in *Ingest) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", in.addr)
	if err != nil {
		return fmt.Errorf("ingest: listen: %w", err)
	}
	defer ln.Close()

	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("ingest: unexpected listener type %T", ln)
	}

	in.boundAddr.Store(ln.Addr().String())
	in.log.Info("frame ingest listening", "addr", ln.Addr().String())

	for {
		if err := tl.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
			return fmt.Errorf("ingest: set accept deadline: %w", err)
		}
		conn, err := tl.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("ingest: accept: %w", err)
		}
		if err := in.serve(ctx, conn); err != nil {
			return err
		}
	}
}

// serve reads frames off one camera connection until the camera disconnects
// or ctx is cancelled. Malformed records are skipped; exceeding the
// consecutive-error cap terminates the ingest entirely.
func (in *Ingest) serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	in.log.Info("camera connected", "remote", conn.RemoteAddr().String())

	r := bufio.NewReaderSize(conn, 64<<10)
	consecutive := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			in.log.Warn("set read deadline failed", "err", err)
			return nil
		}

		payload, err := readFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				in.log.Info("camera disconnected")
				return nil
			}
			consecutive++
			in.metrics.FrameErrors.Add(ctx, 1)
			if consecutive > maxConsecutiveErrors {
				return fmt.Errorf("ingest: %d consecutive frame errors, giving up: %w", consecutive, err)
			}
			in.log.Warn("frame read error", "consecutive", consecutive, "err", err)
			continue
		}
		consecutive = 0

		in.metrics.FramesReceived.Add(ctx, 1)
		if dropped := in.queue.Push(Frame{JPEG: payload, At: time.Now()}); dropped {
			in.metrics.FramesDropped.Add(ctx, 1)
			in.log.Debug("frame dropped, recogniser busy", "total_dropped", in.queue.Dropped())
		}
	}
}

// readFrame reads one record: "VXL0" magic, 4-byte big-endian payload length,
// then the JPEG payload. A clean EOF before the header passes through as
// io.EOF so callers can distinguish disconnect from corruption.
func readFrame(r io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("ingest: header read: %w", err)
	}

	if string(header[:4]) != frameMagic {
		return nil, fmt.Errorf("ingest: bad magic %q", header[:4])
	}

	n := binary.BigEndian.Uint32(header[4:])
	if n == 0 || n > MaxFramePayload {
		return nil, fmt.Errorf("ingest: payload length %d out of range (0, %d]", n, MaxFramePayload)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("ingest: payload read: %w", err)
	}
	return payload, nil
}
