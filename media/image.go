// Package media loads the visual sources the point cloud samples: still
// images and live video feeds, both fitted to the grid size.
package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/1risS/in.organico/resources"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Source is a resource the renderer can sample. The version increases each
// time the pixels change.
type Source interface {
	resources.Resource
	Frame() (*image.RGBA, uint64)
}

// Image is a decoded still.
type Image struct {
	uri    string
	pixels *image.RGBA
}

func (i *Image) Kind() resources.Kind { return resources.Image }
func (i *Image) URI() string          { return i.uri }

// Frame returns the pixels, always at version 1.
func (i *Image) Frame() (*image.RGBA, uint64) { return i.pixels, 1 }

// Release drops the pixel buffer.
func (i *Image) Release() { i.pixels = nil }

// NewBlank returns a black image of the given size.
func NewBlank(width, height int) *Image {
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return &Image{pixels: rgba}
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

func (l *Loader) open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if !isRemote(uri) {
		return os.Open(strings.TrimPrefix(uri, "file://"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", uri, resp.Status)
	}
	return resp.Body, nil
}

// LoadImage decodes uri, a path or an http(s) URL, and scales it to the grid.
func (l *Loader) LoadImage(ctx context.Context, uri string) (resources.Resource, error) {
	r, err := l.open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", uri, err)
	}
	b := img.Bounds()
	l.logger().Debug("Decoded image", "uri", uri, "format", format, "width", b.Dx(), "height", b.Dy())
	return &Image{uri: uri, pixels: fit(img, l.Width, l.Height)}, nil
}

// fit scales img to width x height, stretching like a video element texture.
func fit(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if img.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
