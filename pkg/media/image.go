package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Output formats
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// ImageOptions controls CompressImage
type ImageOptions struct {
	MaxBytes     int
	MaxDimension int
	Quality      int
	Format       string
	// MaxPixels caps width*height of the source before it is decoded
	MaxPixels int
}

// DefaultImageOptions suits listing photos
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		MaxBytes:     1 << 20,
		MaxDimension: 1920,
		Quality:      82,
		Format:       FormatJPEG,
		MaxPixels:    40_000_000,
	}
}

// Result is the outcome of a compression
type Result struct {
	Data           []byte
	ContentType    string
	Filename       string
	OriginalSize   int
	CompressedSize int
	// Fallback is set when the original bytes were returned unchanged
	Fallback bool
	Err      error
}

const minQuality = 40

// ErrTooManyPixels is set on a Result whose source is larger than MaxPixels
var ErrTooManyPixels = errors.New("image has too many pixels")

// CompressImage shrinks an image to fit opts. It never fails: on any problem the
// original data comes back with Fallback set and the cause in Err.
func CompressImage(ctx context.Context, data []byte, filename string, opts ImageOptions) *Result {
	opts = withImageDefaults(opts)

	original := &Result{
		Data:           data,
		ContentType:    sniffContentType(data),
		Filename:       filename,
		OriginalSize:   len(data),
		CompressedSize: len(data),
		Fallback:       true,
	}

	if err := ctx.Err(); err != nil {
		original.Err = err
		return original
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		original.Err = fmt.Errorf("decode image header: %w", err)
		return original
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(opts.MaxPixels) {
		original.Err = fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, opts.MaxPixels)
		return original
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		original.Err = fmt.Errorf("decode image: %w", err)
		return original
	}
	img = downscale(img, opts.MaxDimension)

	var out []byte
	switch opts.Format {
	case FormatPNG:
		out, err = encodePNG(img)
	default:
		out, err = encodeJPEGWithin(ctx, img, opts.Quality, opts.MaxBytes)
	}
	if err != nil {
		original.Err = err
		return original
	}

	if len(out) >= len(data) {
		original.Err = fmt.Errorf("compressed output (%d bytes) is not smaller than the original", len(out))
		return original
	}

	return &Result{
		Data:           out,
		ContentType:    "image/" + opts.Format,
		Filename:       renameExt(filename, opts.Format),
		OriginalSize:   len(data),
		CompressedSize: len(out),
	}
}

func withImageDefaults(opts ImageOptions) ImageOptions {
	def := DefaultImageOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	opts.Format = strings.ToLower(opts.Format)
	if opts.Format == "jpg" {
		opts.Format = FormatJPEG
	}
	if opts.Format != FormatPNG {
		opts.Format = FormatJPEG
	}
	return opts
}

// downscale keeps the aspect ratio so that the longest side is at most max
func downscale(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}

	nw, nh := max, h*max/w
	if h > w {
		nw, nh = w*max/h, max
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// encodeJPEGWithin lowers quality in steps until the output fits maxBytes
func encodeJPEGWithin(ctx context.Context, img image.Image, quality, maxBytes int) ([]byte, error) {
	flat := flatten(img)

	var buf bytes.Buffer
	for q := quality; ; q -= 10 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q < minQuality {
			q = minQuality
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= maxBytes || q == minQuality {
			return buf.Bytes(), nil
		}
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten paints transparent pixels on white, jpeg has no alpha channel
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

func sniffContentType(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "application/octet-stream"
	}
	return "image/" + format
}

func renameExt(filename, format string) string {
	if filename == "" {
		return ""
	}
	ext := ".jpg"
	if format == FormatPNG {
		ext = ".png"
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}
