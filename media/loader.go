package media

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Loader opens sources at a fixed grid size. The zero Client uses a client
// with a 30 second timeout.
type Loader struct {
	Width, Height int
	// FFmpegPath overrides the ffmpeg binary used for video.
	FFmpegPath string
	Client     *http.Client
	Logger     *log.Logger
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

func (l *Loader) client() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	return defaultClient
}

func (l *Loader) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.Default()
}

// Blank returns a black still at the grid size.
func (l *Loader) Blank() *Image { return NewBlank(l.Width, l.Height) }
