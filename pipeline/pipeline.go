// Package pipeline turns user-selected photos into upload-ready assets.
//
// Prepare decodes JPEG, PNG, GIF or WebP input, downscales it so the longer
// side fits MaxDimension, and re-encodes it with decreasing quality until
// the result fits MaxSizeBytes. Output is deterministic for identical input
// and options.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// Sentinel errors.
var (
	// ErrInvalidImage is returned when input cannot be decoded as an image.
	ErrInvalidImage = errors.New("pipeline: invalid image")

	// ErrTooLarge is returned when no allowed quality fits the size budget.
	ErrTooLarge = errors.New("pipeline: image too large")

	// ErrInvalidOptions is returned for unusable Options.
	ErrInvalidOptions = errors.New("pipeline: invalid options")
)

// Format is an image encoding.
type Format uint8

// Supported formats. WebP and GIF are accepted as input only.
const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatWebP
	FormatGIF
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	case FormatGIF:
		return "gif"
	default:
		return "unknown"
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatUnknown {
		return "application/octet-stream"
	}
	return "image/" + f.String()
}

// ParseFormat maps a name such as "jpeg" or "png" to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "gif":
		return FormatGIF, nil
	}
	return FormatUnknown, fmt.Errorf("%w: unknown format %q", ErrInvalidOptions, name)
}

// Asset is an encoded image ready for upload.
type Asset struct {
	Bytes     []byte
	Width     int
	Height    int
	Format    Format
	SizeBytes int
}

// ContentType returns the MIME type of the asset bytes.
func (a Asset) ContentType() string {
	return a.Format.ContentType()
}

// Decode decodes raw and reports its source format.
func Decode(raw []byte) (image.Image, Format, error) {
	if len(raw) == 0 {
		return nil, FormatUnknown, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, FormatUnknown, fmt.Errorf("%w: empty dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, FormatUnknown, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	format, err := ParseFormat(name)
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}

// Prepare decodes, resizes and compresses raw.
func Prepare(ctx context.Context, raw []byte, opts ...Option) (Asset, error) {
	return PrepareWith(ctx, raw, NewOptions(opts...))
}

// PrepareWith is Prepare with a fully built Options value.
func PrepareWith(ctx context.Context, raw []byte, o Options) (Asset, error) {
	if err := o.Validate(); err != nil {
		return Asset{}, err
	}
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	src, _, err := Decode(raw)
	if err != nil {
		return Asset{}, err
	}
	img := fit(src, o.MaxDimension, o.Format == FormatPNG)
	b := img.Bounds()

	var out []byte
	switch o.Format {
	case FormatPNG:
		out, err = encodePNG(img, o.MaxSizeBytes)
	default:
		out, err = encodeJPEGWithin(ctx, img, o.Quality, o.MaxSizeBytes)
	}
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		Bytes:     out,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    o.Format,
		SizeBytes: len(out),
	}, nil
}

// Thumbnail returns a JPEG whose longer side is at most size pixels, encoded
// once at ThumbnailQuality.
func Thumbnail(ctx context.Context, raw []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: thumbnail size %d", ErrInvalidOptions, size)
	}
	src, _, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return encodeJPEG(fit(src, size, false), qualityPercent(ThumbnailQuality))
}

// scaledSize returns the dimensions of a w x h image whose longer side is
// limited to maxDim, preserving aspect ratio. Images already within the
// limit keep their size.
func scaledSize(w, h, maxDim int) (int, int) {
	longer := max(w, h)
	if longer <= maxDim {
		return w, h
	}
	scale := float64(maxDim) / float64(longer)
	nw := max(int(math.Round(float64(w)*scale)), 1)
	nh := max(int(math.Round(float64(h)*scale)), 1)
	if w >= h {
		nw = maxDim
	} else {
		nh = maxDim
	}
	return nw, nh
}

// fit draws src into a new image bounded by maxDim. Without keepAlpha the
// image is flattened onto white, since JPEG has no alpha channel.
func fit(src image.Image, maxDim int, keepAlpha bool) image.Image {
	sb := src.Bounds()
	w, h := scaledSize(sb.Dx(), sb.Dy(), maxDim)
	rect := image.Rect(0, 0, w, h)

	if keepAlpha {
		dst := image.NewNRGBA(rect)
		draw.CatmullRom.Scale(dst, rect, src, sb, draw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, rect, src, sb, draw.Over, nil)
	return dst
}

func qualityPercent(q float64) int {
	return min(max(int(math.Round(q*100)), 1), 100)
}

// encodeJPEGWithin lowers quality in QualityStep decrements, never below
// MinQuality, until the encoding fits maxBytes.
func encodeJPEGWithin(ctx context.Context, img image.Image, quality float64, maxBytes int) ([]byte, error) {
	q := qualityPercent(quality)
	floor := qualityPercent(MinQuality)
	step := qualityPercent(QualityStep)
	if q < floor {
		floor = q
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := encodeJPEG(img, q)
		if err != nil {
			return nil, err
		}
		if len(out) <= maxBytes {
			return out, nil
		}
		if q <= floor {
			return nil, fmt.Errorf("%w: %d bytes at minimum quality, limit %d", ErrTooLarge, len(out), maxBytes)
		}
		q = max(q-step, floor)
	}
}

func encodeJPEG(img image.Image, q int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("pipeline: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// encodePNG tries default compression, then best compression once.
func encodePNG(img image.Image, maxBytes int) ([]byte, error) {
	var last int
	for _, level := range []png.CompressionLevel{png.DefaultCompression, png.BestCompression} {
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: level}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("pipeline: encode png: %w", err)
		}
		if buf.Len() <= maxBytes {
			return buf.Bytes(), nil
		}
		last = buf.Len()
	}
	return nil, fmt.Errorf("%w: %d bytes at best compression, limit %d", ErrTooLarge, last, maxBytes)
}
