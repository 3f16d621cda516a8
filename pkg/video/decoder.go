package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-mimic/internal/log"
)

// Decoder turns an H264 Annex-B stream into JPEG images.
type Decoder interface {
	// Write feeds one access unit. It must not block on frame output.
	Write(accessUnit []byte) error
	// Frames delivers decoded JPEGs in decode order. Closed when the
	// decoder stops.
	Frames() <-chan []byte
	Close() error
}

// DecoderFactory creates a decoder per WebRTC session.
type DecoderFactory func(ctx context.Context) (Decoder, error)

// FFmpegDecoder keeps one ffmpeg process alive per stream and pipes access
// units in and MJPEG images out, avoiding a process spawn per frame.
type FFmpegDecoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan []byte

	mu     sync.Mutex
	closed bool

	written atomic.Uint64
	decoded atomic.Uint64
}

// FFmpegPath is the ffmpeg binary used by NewFFmpegDecoder.
var FFmpegPath = "ffmpeg"

// NewFFmpegDecoder starts ffmpeg reading H264 from stdin. quality is the
// MJPEG -q:v value (2-31, lower is better).
func NewFFmpegDecoder(ctx context.Context, quality int) (*FFmpegDecoder, error) {
	if quality < 2 || quality > 31 {
		quality = 3
	}

	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", "h264", // Input format
		"-i", "pipe:0", // Read from stdin
		"-f", "image2pipe", // Output as pipe
		"-vcodec", "mjpeg", // Output as JPEG
		"-q:v", fmt.Sprint(quality),
		"pipe:1", // Write to stdout
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d := &FFmpegDecoder{
		cmd:    cmd,
		stdin:  stdin,
		frames: make(chan []byte, 4),
	}
	go d.readFrames(stdout)
	return d, nil
}

// FFmpegFactory returns a DecoderFactory for NewFFmpegDecoder.
func FFmpegFactory(quality int) DecoderFactory {
	return func(ctx context.Context) (Decoder, error) {
		return NewFFmpegDecoder(ctx, quality)
	}
}

func (d *FFmpegDecoder) readFrames(stdout io.Reader) {
	defer close(d.frames)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)
	sc.Split(splitJPEG)

	for sc.Scan() {
		img := append([]byte(nil), sc.Bytes()...)
		d.decoded.Add(1)
		select {
		case d.frames <- img:
		default:
			// Consumer is behind: drop the oldest and keep the newest
			select {
			case <-d.frames:
			default:
			}
			d.frames <- img
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("ffmpeg output ended", "error", err)
	}
}

// Write implements Decoder.
func (d *FFmpegDecoder) Write(au []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDecoderClosed
	}
	if _, err := d.stdin.Write(au); err != nil {
		return fmt.Errorf("write to ffmpeg: %w", err)
	}
	d.written.Add(1)
	return nil
}

// Frames implements Decoder.
func (d *FFmpegDecoder) Frames() <-chan []byte { return d.frames }

// Counts returns access units written and images decoded.
func (d *FFmpegDecoder) Counts() (written, decoded uint64) {
	return d.written.Load(), d.decoded.Load()
}

// Close terminates the decoder.
func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.stdin.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	err := d.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed on purpose
		return nil
	}
	return err
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// splitJPEG is a bufio.SplitFunc yielding one complete JPEG per token from
// a concatenated MJPEG stream. Bytes before a start-of-image marker are
// discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it begins a marker
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Drop leading garbage, wait for more
		return start, nil, nil
	}
	end += start + 2 + len(jpegEOI)
	return end, data[start:end], nil
}
