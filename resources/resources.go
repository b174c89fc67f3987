// Package resources owns the visual source feeding the point cloud and makes
// sure every superseded source is released exactly once.
package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// ErrLoad wraps every failure to load a source.
var ErrLoad = errors.New("resource load failed")

// Kind tells static sources from continuously updating ones.
type Kind int

const (
	Image Kind = iota
	Video
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "image"
}

// Resource is a bound visual source. Release frees its native backing.
type Resource interface {
	Kind() Kind
	URI() string
	Release()
}

// Loader produces resources. Both methods block until the resource is ready:
// an image is decoded, a video has delivered its first frame.
type Loader interface {
	LoadImage(ctx context.Context, uri string) (Resource, error)
	OpenVideo(ctx context.Context, uri string) (Resource, error)
}

// Flags is the part of the render scheduler a binding affects.
type Flags interface {
	MarkDirty()
	SetAlwaysRender(on bool)
}

// Manager tracks the current binding. Bind requests race; each one captures a
// generation and commits only if no newer request was issued since.
// Completions are delivered through post so that every state change happens
// on the session loop.
type Manager struct {
	loader  Loader
	flags   Flags
	post    func(func())
	onError func(error)

	ctx        context.Context
	cancel     context.CancelFunc
	current    Resource
	generation uint64
}

// New returns a manager. post must run its argument on the session loop;
// onError receives load failures.
func New(loader Loader, flags Flags, post func(func()), onError func(error)) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		loader:  loader,
		flags:   flags,
		post:    post,
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// BindImage starts loading uri as a static image.
func (m *Manager) BindImage(uri string) uint64 {
	return m.bind(Image, uri)
}

// BindVideo starts opening uri as a live feed.
func (m *Manager) BindVideo(uri string) uint64 {
	return m.bind(Video, uri)
}

func (m *Manager) bind(kind Kind, uri string) uint64 {
	m.generation++
	gen := m.generation
	log.Infof("%s set to: %s", kind, uri)
	go func() {
		var (
			res Resource
			err error
		)
		if kind == Video {
			res, err = m.loader.OpenVideo(m.ctx, uri)
		} else {
			res, err = m.loader.LoadImage(m.ctx, uri)
		}
		m.post(func() { m.complete(gen, kind, uri, res, err) })
	}()
	return gen
}

func (m *Manager) complete(gen uint64, kind Kind, uri string, res Resource, err error) {
	if gen != m.generation {
		log.Debug("discarding superseded source", "uri", uri, "generation", gen)
		if res != nil {
			res.Release()
		}
		return
	}
	if err != nil {
		if m.onError != nil {
			m.onError(fmt.Errorf("%w: %s %s: %v", ErrLoad, kind, uri, err))
		}
		return
	}
	m.swap(res)
	if kind == Video {
		m.flags.SetAlwaysRender(true)
	} else {
		m.flags.SetAlwaysRender(false)
		m.flags.MarkDirty()
	}
}

// Reset binds def immediately and invalidates every outstanding request.
func (m *Manager) Reset(def Resource) {
	m.generation++
	m.swap(def)
	m.flags.SetAlwaysRender(def != nil && def.Kind() == Video)
	m.flags.MarkDirty()
}

func (m *Manager) swap(res Resource) {
	prev := m.current
	m.current = res
	if prev != nil && prev != res {
		prev.Release()
	}
}

// Current returns the bound resource, or nil.
func (m *Manager) Current() Resource { return m.current }

// Generation returns the generation of the latest request.
func (m *Manager) Generation() uint64 { return m.generation }

// Close cancels pending loads and releases the current binding. Loads that
// finish afterwards are released by their completion.
func (m *Manager) Close() {
	m.cancel()
	m.generation++
	m.swap(nil)
}
