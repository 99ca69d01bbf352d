package vision

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// encodeFrame builds a wire record for payload.
func encodeFrame(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(frameMagic)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(payload)))
	buf.Write(n[:])
	buf.Write(payload)
	return buf.Bytes()
}

func TestReadFrame(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		payload := []byte{0xff, 0xd8, 0xff, 0xe0}
		got, err := readFrame(bytes.NewReader(encodeFrame(payload)))
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload = %v, want %v", got, payload)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		rec := encodeFrame([]byte{1, 2, 3})
		copy(rec, "XXXX")
		if _, err := readFrame(bytes.NewReader(rec)); err == nil {
			t.Fatal("expected error for bad magic")
		}
	})

	t.Run("zero length", func(t *testing.T) {
		if _, err := readFrame(bytes.NewReader(encodeFrame(nil))); err == nil {
			t.Fatal("expected error for zero-length payload")
		}
	})

	t.Run("oversize length", func(t *testing.T) {
		var buf bytes.Buffer
		buf.WriteString(frameMagic)
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], MaxFramePayload+1)
		buf.Write(n[:])
		if _, err := readFrame(&buf); err == nil {
			t.Fatal("expected error for oversize payload")
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		rec := encodeFrame([]byte{1, 2, 3, 4})
		if _, err := readFrame(bytes.NewReader(rec[:10])); err == nil {
			t.Fatal("expected error for truncated payload")
		}
	})

	t.Run("clean EOF passes through", func(t *testing.T) {
		if _, err := readFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
			t.Fatalf("err = %v, want io.EOF", err)
		}
	})
}

func TestIngestEndToEnd(t *testing.T) {
	queue := NewFrameQueue(8)
	in := NewIngest("127.0.0.1:0", queue, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- in.Run(ctx) }()

	// Wait for the listener to bind.
	var addr string
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		if addr = in.Addr(); addr != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("ingest never bound")
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := [][]byte{{0xaa}, {0xbb, 0xcc}, {0xdd, 0xee, 0xff}}
	for _, p := range want {
		if _, err := conn.Write(encodeFrame(p)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for i, p := range want {
		popCtx, popCancel := context.WithTimeout(ctx, 5*time.Second)
		f, ok := queue.Pop(popCtx)
		popCancel()
		if !ok {
			t.Fatalf("frame %d never arrived", i)
		}
		if !bytes.Equal(f.JPEG, p) {
			t.Errorf("frame %d = %v, want %v", i, f.JPEG, p)
		}
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestIngestTerminatesAfterRepeatedErrors(t *testing.T) {
	queue := NewFrameQueue(8)
	in := NewIngest("127.0.0.1:0", queue, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- in.Run(ctx) }()

	var addr string
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		if addr = in.Addr(); addr != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("ingest never bound")
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Eleven bad-magic headers in a row: ten are tolerated, the eleventh
	// terminates the ingest, not just the connection.
	for i := 0; i <= maxConsecutiveErrors; i++ {
		if _, err := conn.Write([]byte("XXXXXXXX")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	select {
	case err := <-runErr:
		if err == nil {
			t.Fatal("Run returned nil, want a frame-error failure")
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run kept going after the consecutive-error cap")
	}
}

func TestIngestSkipsMalformedRecord(t *testing.T) {
	queue := NewFrameQueue(8)
	in := NewIngest("127.0.0.1:0", queue, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	var addr string
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		if addr = in.Addr(); addr != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("ingest never bound")
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A zero-length record (8 bytes consumed, skipped) followed by a valid one.
	bad := append([]byte(frameMagic), 0, 0, 0, 0)
	conn.Write(bad)
	conn.Write(encodeFrame([]byte{0x11, 0x22}))

	popCtx, popCancel := context.WithTimeout(ctx, 5*time.Second)
	defer popCancel()
	f, ok := queue.Pop(popCtx)
	if !ok {
		t.Fatal("valid frame after malformed record never arrived")
	}
	if !bytes.Equal(f.JPEG, []byte{0x11, 0x22}) {
		t.Errorf("frame = %v, want [11 22]", f.JPEG)
	}
}
