// Package imaging re-encodes uploads into a bounded JPEG before they are
// handed to the AI providers.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 2048
	DefaultQuality      = 82
	ContentType         = "image/jpeg"
)

// ErrUndecodable is returned when the upload is not a supported image.
// Retrying cannot fix it.
var ErrUndecodable = errors.New("imaging: unsupported or corrupt image")

// Options bounds the output.
type Options struct {
	MaxDimension int
	Quality      int
}

// Result is an optimized image.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	SourceFormat string
}

// Optimize decodes data, scales it so the longest side is at most
// MaxDimension, flattens transparency onto white and encodes a JPEG.
func Optimize(data []byte, opts Options) (*Result, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := src.Bounds()
	w, h := fit(bounds.Dx(), bounds.Dy(), opts.MaxDimension)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUndecodable)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return &Result{Data: buf.Bytes(), Width: w, Height: h, SourceFormat: format}, nil
}

func fit(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
