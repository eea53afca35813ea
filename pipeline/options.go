package pipeline

import "fmt"

// Defaults for Prepare.
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 0.8
	DefaultMaxSizeBytes = 10 << 20

	// MinQuality is the floor of the compression loop.
	MinQuality = 0.1

	// QualityStep is subtracted from the quality after each oversized encode.
	QualityStep = 0.1

	// ThumbnailQuality is the fixed quality used for thumbnails.
	ThumbnailQuality = 0.7

	// MaxPixels bounds the decoded size of a source image.
	MaxPixels = 100_000_000
)

// Options control how Prepare shapes an image.
type Options struct {
	// MaxDimension bounds the longer side of the output in pixels.
	MaxDimension int

	// Quality is the starting encoder quality in (0, 1]. PNG output ignores it.
	Quality float64

	// MaxSizeBytes bounds the encoded output.
	MaxSizeBytes int

	// Format is the output encoding, FormatJPEG or FormatPNG.
	Format Format
}

// Option configures Options.
type Option func(*Options)

// WithMaxDimension sets the longest allowed side in pixels.
func WithMaxDimension(px int) Option {
	return func(o *Options) {
		o.MaxDimension = px
	}
}

// WithQuality sets the starting encoder quality.
func WithQuality(q float64) Option {
	return func(o *Options) {
		o.Quality = q
	}
}

// WithMaxSizeBytes sets the output size budget.
func WithMaxSizeBytes(n int) Option {
	return func(o *Options) {
		o.MaxSizeBytes = n
	}
}

// WithFormat sets the output encoding.
func WithFormat(f Format) Option {
	return func(o *Options) {
		o.Format = f
	}
}

// NewOptions returns the defaults with opts applied.
func NewOptions(opts ...Option) Options {
	o := Options{
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
		MaxSizeBytes: DefaultMaxSizeBytes,
		Format:       FormatJPEG,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Validate reports whether the options can be used.
func (o Options) Validate() error {
	switch {
	case o.MaxDimension <= 0:
		return fmt.Errorf("%w: max dimension %d", ErrInvalidOptions, o.MaxDimension)
	case o.Quality <= 0 || o.Quality > 1:
		return fmt.Errorf("%w: quality %v", ErrInvalidOptions, o.Quality)
	case o.MaxSizeBytes <= 0:
		return fmt.Errorf("%w: max size %d", ErrInvalidOptions, o.MaxSizeBytes)
	case o.Format != FormatJPEG && o.Format != FormatPNG:
		return fmt.Errorf("%w: cannot encode %s", ErrInvalidOptions, o.Format)
	}
	return nil
}
