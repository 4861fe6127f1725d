// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package wire implements the framed message protocol spoken between the
// canvas host and its plugins over a Unix domain socket.
//
// Every frame is a 4-byte little-endian payload length followed by that many
// bytes of deterministic CBOR. A frame with length zero followed by a single
// 0x00 byte is a liveness probe: it carries no message and readers skip it.
package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/samber/oops"
)

const (
	headerSize = 4
	probeSize  = headerSize + 1

	// probeSentinel is the only sentinel value defined for zero-length frames.
	probeSentinel = 0x00

	initialBufferSize = 4096
	minReadSize       = 512

	// DefaultMaxFrameSize bounds a single payload.
	DefaultMaxFrameSize = 16 << 20
)

var probeFrame = [probeSize]byte{}

// Conn turns a duplex byte stream into a sequence of messages.
//
// A Conn is owned by one goroutine. Reads accumulate into a buffer that is
// kept between calls, so a frame split across several socket reads (or
// across calls that timed out) is never lost.
type Conn struct {
	rw         io.ReadWriteCloser
	buf        []byte
	maxFrame   int
	peerClosed bool
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n int) ConnOption {
	return func(c *Conn) {
		if n > 0 {
			c.maxFrame = n
		}
	}
}

// NewConn wraps rw. When rw supports read and write deadlines (net.Conn
// does), context deadlines and cancellation are honored by ReadFrame and
// WriteFrame.
func NewConn(rw io.ReadWriteCloser, opts ...ConnOption) *Conn {
	c := &Conn{
		rw:       rw,
		buf:      make([]byte, 0, initialBufferSize),
		maxFrame: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PeerClosed reports whether a read has observed a clean end of stream.
func (c *Conn) PeerClosed() bool {
	return c.peerClosed
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rw.Close()
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type flusher interface {
	Flush() error
}

// ReadFrame reads the next frame and decodes it into v.
//
// It returns true when a message was decoded. It returns false with a nil
// error when the frame was a liveness probe or when the peer closed the
// stream cleanly between frames; PeerClosed tells the two apart. Any error
// is terminal for the connection.
func (c *Conn) ReadFrame(ctx context.Context, v any) (bool, error) {
	if c.peerClosed && len(c.buf) == 0 {
		return false, nil
	}

	if d, ok := c.rw.(readDeadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetReadDeadline(deadline); err != nil {
			return false, oops.In("wire").Code(CodeIO).Wrapf(errors.Join(ErrIO, err), "set read deadline")
		}
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetReadDeadline(time.Now())
		})
		defer stop()
	}

	for {
		res, err := c.parseFrame(v)
		if err != nil {
			return false, err
		}
		switch res.status {
		case frameMessage:
			return true, nil
		case frameProbe:
			return false, nil
		}

		n, err := c.fill(res.want)
		if n > 0 {
			continue
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return false, c.closedErr()
		}
		return false, c.readErr(ctx, err)
	}
}

type frameStatus int

const (
	frameIncomplete frameStatus = iota
	frameProbe
	frameMessage
)

type parseResult struct {
	status frameStatus
	// want is the total number of buffered bytes needed to make progress.
	want int
}

func (c *Conn) parseFrame(v any) (parseResult, error) {
	if len(c.buf) < headerSize {
		return parseResult{status: frameIncomplete, want: headerSize}, nil
	}

	size := int(binary.LittleEndian.Uint32(c.buf[:headerSize]))
	if size == 0 {
		if len(c.buf) < probeSize {
			return parseResult{status: frameIncomplete, want: probeSize}, nil
		}
		if sentinel := c.buf[headerSize]; sentinel != probeSentinel {
			return parseResult{}, oops.In("wire").Code(CodeFraming).With("sentinel", sentinel).
				Wrapf(ErrFraming, "unknown zero-length frame sentinel 0x%02x", sentinel)
		}
		c.consume(probeSize)
		return parseResult{status: frameProbe}, nil
	}

	if size > c.maxFrame {
		return parseResult{}, oops.In("wire").Code(CodeFraming).With("declared", size).With("max", c.maxFrame).
			Wrapf(ErrFraming, "frame length %d exceeds limit %d", size, c.maxFrame)
	}

	total := headerSize + size
	if len(c.buf) < total {
		return parseResult{status: frameIncomplete, want: total}, nil
	}

	payload := c.buf[headerSize:total]
	if err := Unmarshal(payload, v); err != nil {
		if isLengthMismatch(err) {
			return parseResult{}, oops.In("wire").Code(CodeFraming).With("declared", size).
				Wrapf(errors.Join(ErrFraming, err), "declared length does not match payload")
		}
		return parseResult{}, oops.In("wire").Code(CodeDecode).With("size", size).
			Wrapf(errors.Join(ErrDecode, err), "decode payload")
	}
	c.consume(total)
	if val, ok := v.(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			return parseResult{}, err
		}
	}
	return parseResult{status: frameMessage}, nil
}

// isLengthMismatch reports whether a decode failure on a complete frame
// means the item ends before or after the declared length.
func isLengthMismatch(err error) bool {
	var extra *cbor.ExtraneousDataError
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &extra)
}

// fill reads at least once from the stream, growing the buffer so a frame
// of want bytes fits.
func (c *Conn) fill(want int) (int, error) {
	if want < len(c.buf)+minReadSize {
		want = len(c.buf) + minReadSize
	}
	if cap(c.buf) < want {
		grown := make([]byte, len(c.buf), want)
		copy(grown, c.buf)
		c.buf = grown
	}
	n, err := c.rw.Read(c.buf[len(c.buf):cap(c.buf)])
	c.buf = c.buf[:len(c.buf)+n]
	return n, err
}

func (c *Conn) consume(n int) {
	c.buf = c.buf[:copy(c.buf, c.buf[n:])]
}

func (c *Conn) closedErr() error {
	c.peerClosed = true
	buffered := len(c.buf)
	if buffered == 0 {
		return nil
	}

	errb := oops.In("wire").Code(CodeConnectionReset).With("buffered", buffered)
	if buffered < headerSize {
		return errb.Wrapf(ErrConnectionReset, "peer closed inside frame header")
	}
	declared := int(binary.LittleEndian.Uint32(c.buf[:headerSize]))
	return errb.With("declared", declared).
		Wrapf(errors.Join(ErrConnectionReset, ErrFraming),
			"peer closed after %d of %d payload bytes", buffered-headerSize, declared)
}

func (c *Conn) readErr(ctx context.Context, err error) error {
	errb := oops.In("wire").With("buffered", len(c.buf))
	switch {
	case ctx.Err() != nil:
		return errb.Code(CodeIO).Wrapf(errors.Join(ErrIO, ctx.Err()), "read interrupted")
	case errors.Is(err, os.ErrDeadlineExceeded):
		return errb.Code(CodeIO).Wrapf(errors.Join(ErrIO, context.DeadlineExceeded), "read timed out")
	case errors.Is(err, syscall.ECONNRESET):
		c.peerClosed = true
		return errb.Code(CodeConnectionReset).Wrapf(errors.Join(ErrConnectionReset, err), "read")
	default:
		return errb.Code(CodeIO).Wrapf(errors.Join(ErrIO, err), "read")
	}
}

// WriteFrame encodes v, prefixes it with its length, and writes and flushes
// the whole frame.
func (c *Conn) WriteFrame(ctx context.Context, v any) error {
	payload, err := Marshal(v)
	if err != nil {
		return oops.In("wire").Code(CodeIO).Wrapf(errors.Join(ErrIO, err), "encode payload")
	}
	if len(payload) > c.maxFrame {
		return oops.In("wire").Code(CodeFraming).With("size", len(payload)).With("max", c.maxFrame).
			Wrapf(ErrFraming, "frame length %d exceeds limit %d", len(payload), c.maxFrame)
	}

	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[:headerSize], uint32(len(payload))) //nolint:gosec // bounded by maxFrame
	copy(frame[headerSize:], payload)

	return c.write(ctx, frame)
}

// IsOpen writes a liveness probe and reports whether the write succeeded.
// It is the only way the host notices a vanished peer without reading.
func (c *Conn) IsOpen(ctx context.Context) bool {
	return c.write(ctx, probeFrame[:]) == nil
}

func (c *Conn) write(ctx context.Context, frame []byte) error {
	if d, ok := c.rw.(writeDeadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetWriteDeadline(deadline); err != nil {
			return oops.In("wire").Code(CodeIO).Wrapf(errors.Join(ErrIO, err), "set write deadline")
		}
	}

	if _, err := c.rw.Write(frame); err != nil {
		return oops.In("wire").Code(CodeIO).With("size", len(frame)).Wrapf(errors.Join(ErrIO, err), "write")
	}
	if f, ok := c.rw.(flusher); ok {
		if err := f.Flush(); err != nil {
			return oops.In("wire").Code(CodeIO).Wrapf(errors.Join(ErrIO, err), "flush")
		}
	}
	return nil
}
