package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/1risS/in.organico/resources"
	"github.com/charmbracelet/log"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Video is a live feed decoded by an ffmpeg child process into raw RGBA
// frames at the grid size.
type Video struct {
	uri    string
	cmd    *exec.Cmd
	reader *io.PipeReader
	stderr bytes.Buffer
	exited chan struct{}

	mu      sync.Mutex
	pixels  *image.RGBA
	version uint64

	releaseOnce sync.Once
}

func (v *Video) Kind() resources.Kind { return resources.Video }
func (v *Video) URI() string          { return v.uri }

// Frame returns the latest decoded frame and its sequence number.
func (v *Video) Frame() (*image.RGBA, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pixels, v.version
}

// Release stops the decoder. It is safe to call more than once.
func (v *Video) Release() {
	v.releaseOnce.Do(func() {
		if v.cmd != nil && v.cmd.Process != nil {
			v.cmd.Process.Kill()
		}
		if v.reader != nil {
			v.reader.Close()
		}
		log.Debug("Video released", "uri", v.uri)
	})
}

func (v *Video) store(frame *image.RGBA) {
	v.mu.Lock()
	v.pixels = frame
	v.version++
	v.mu.Unlock()
}

// readFrames copies fixed-size frames from r until it fails. ready is closed
// after the first frame.
func (v *Video) readFrames(r io.Reader, width, height int, ready chan<- struct{}) error {
	first := true
	for {
		frame := image.NewRGBA(image.Rect(0, 0, width, height))
		if _, err := io.ReadFull(r, frame.Pix); err != nil {
			return err
		}
		v.store(frame)
		if first {
			close(ready)
			first = false
		}
	}
}

func inputArgs(uri string) ffmpeg.KwArgs {
	args := ffmpeg.KwArgs{"fflags": "nobuffer"}
	if !strings.Contains(uri, "://") {
		// Local files play in real time and loop.
		args["re"] = ""
		args["stream_loop"] = "-1"
	}
	return args
}

// OpenVideo starts decoding uri and returns once the first frame arrived.
func (l *Loader) OpenVideo(ctx context.Context, uri string) (resources.Resource, error) {
	pr, pw := io.Pipe()
	v := &Video{uri: uri, reader: pr, exited: make(chan struct{})}

	stream := ffmpeg.Input(uri, inputArgs(uri)).
		Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:%d", l.Width, l.Height)}).
		Output("pipe:", ffmpeg.KwArgs{
			"f":       "rawvideo",
			"pix_fmt": "rgba",
			"an":      "",
		}).
		WithOutput(pw).
		WithErrorOutput(&v.stderr)
	if l.FFmpegPath != "" {
		stream = stream.SetFfmpegPath(l.FFmpegPath)
	}
	v.cmd = stream.Compile()
	if err := v.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	l.logger().Info("Started video decoder", "uri", uri, "pid", v.cmd.Process.Pid)

	go func() {
		err := v.cmd.Wait()
		pw.CloseWithError(fmt.Errorf("ffmpeg exited: %v", err))
		close(v.exited)
	}()

	ready := make(chan struct{})
	readErr := make(chan error, 1)
	go func() {
		err := v.readFrames(pr, l.Width, l.Height, ready)
		if !errors.Is(err, io.ErrClosedPipe) {
			l.logger().Warn("Video feed ended", "uri", uri, "err", err)
		}
		readErr <- err
	}()

	select {
	case <-ready:
		return v, nil
	case err := <-readErr:
		v.Release()
		<-v.exited
		return nil, fmt.Errorf("open video %s: %w: %s", uri, err, lastLine(v.stderr.String()))
	case <-ctx.Done():
		v.Release()
		return nil, ctx.Err()
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
