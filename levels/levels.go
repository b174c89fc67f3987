// Package levels turns raw audio into the level samples scenes read as
// telemetry: an overall RMS plus a few frequency bands.
package levels

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	fft "github.com/mjibson/go-dsp/fft"
)

const (
	// FFTSize is the number of samples analyzed per frame.
	FFTSize = 2048

	minDecibels = -100.0
	maxDecibels = -30.0
)

// Analyzer keeps the latest FFTSize samples and reduces them to levels.
type Analyzer struct {
	mu      sync.Mutex
	history []float32
	pos     int

	window    []float64
	edges     []int
	smoothing float64
	last      []float64
}

// NewAnalyzer returns an analyzer producing n bands, log-spaced over the
// spectrum.
func NewAnalyzer(n int) *Analyzer {
	a := &Analyzer{
		history:   make([]float32, FFTSize),
		window:    blackmanWindow(FFTSize),
		edges:     bandEdges(n, FFTSize/2),
		smoothing: 0.8,
		last:      make([]float64, n),
	}
	for i := range a.last {
		a.last[i] = minDecibels
	}
	return a
}

// Push appends samples to the history.
func (a *Analyzer) Push(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.history[a.pos] = s
		a.pos = (a.pos + 1) % len(a.history)
	}
}

func (a *Analyzer) recent() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.history))
	for i := range out {
		out[i] = float64(a.history[(a.pos+i)%len(a.history)])
	}
	return out
}

// Levels returns the RMS of the history and the smoothed band levels, all
// in [0,1].
func (a *Analyzer) Levels() (rms float64, bands []float64) {
	samples := a.recent()

	var sum float64
	for i, s := range samples {
		sum += s * s
		samples[i] = s * a.window[i]
	}
	rms = math.Min(1, math.Sqrt(sum/float64(len(samples))))

	if len(a.last) == 0 {
		return rms, nil
	}
	spectrum := fft.FFTReal(samples)
	bands = make([]float64, len(a.last))
	for b := range a.last {
		lo, hi := a.edges[b], a.edges[b+1]
		var acc float64
		for i := lo; i < hi; i++ {
			re, im := real(spectrum[i]), imag(spectrum[i])
			acc += math.Sqrt(re*re+im*im) * (2.0 / FFTSize)
		}
		db := 20 * math.Log10(acc/float64(hi-lo)+1e-9)
		a.last[b] = a.smoothing*a.last[b] + (1-a.smoothing)*db
		bands[b] = scale(a.last[b])
	}
	return rms, bands
}

func scale(db float64) float64 {
	switch {
	case db < minDecibels:
		return 0
	case db > maxDecibels:
		return 1
	}
	return (db - minDecibels) / (maxDecibels - minDecibels)
}

// bandEdges splits bins [1,bins) into n log-spaced ranges of at least one
// bin each.
func bandEdges(n, bins int) []int {
	edges := make([]int, n+1)
	edges[0] = 1
	for i := 1; i <= n; i++ {
		e := int(math.Round(math.Pow(float64(bins), float64(i)/float64(n))))
		if e <= edges[i-1] {
			e = edges[i-1] + 1
		}
		if e > bins {
			e = bins
		}
		edges[i] = e
	}
	return edges
}

func blackmanWindow(size int) []float64 {
	window := make([]float64, size)
	a0, a1, a2 := 0.42, 0.5, 0.08
	invSize := 1.0 / float64(size-1)
	for i := range window {
		t := float64(i) * invSize
		window[i] = a0 - a1*math.Cos(2*math.Pi*t) + a2*math.Cos(4*math.Pi*t)
	}
	return window
}

// Sink receives one level on one channel.
type Sink func(channel int, level float64)

// Pump feeds chunks from in into a and emits levels every interval: the RMS
// on base and band i on base+1+i. It returns when ctx is done or in closes.
func Pump(ctx context.Context, in <-chan []float32, a *Analyzer, interval time.Duration, base int, sink Sink) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-in:
			if !ok {
				log.Info("Audio input closed, level pump exiting")
				return
			}
			a.Push(chunk)
		case <-t.C:
			rms, bands := a.Levels()
			sink(base, rms)
			for i, b := range bands {
				sink(base+1+i, b)
			}
		}
	}
}
