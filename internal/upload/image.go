// Package upload prepares local image files for multipart upload: format
// sniffing, decode validation and an optional downscale so clients do not
// push needlessly large originals over mobile links.
package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/gateway"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeTIFF = "image/tiff"
)

//nolint:gochecknoglobals
var (
	imageMagicHeaders = map[string][]string{
		MIMETypeJPEG: {"\xFF\xD8"},
		MIMETypePNG:  {"\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"},
		MIMETypeTIFF: {"\x49\x49\x2A\x00", "\x4D\x4D\x00\x2A"},
	}

	imageDecoders = map[string]func(io.Reader) (image.Image, error){
		MIMETypeJPEG: jpeg.Decode,
		MIMETypeTIFF: tiff.Decode,
		MIMETypePNG:  png.Decode,
	}

	imageEncoders = map[string]func(io.Writer, image.Image) error{
		MIMETypeJPEG: func(w io.Writer, i image.Image) error { return jpeg.Encode(w, i, nil) },
		MIMETypeTIFF: func(w io.Writer, i image.Image) error { return tiff.Encode(w, i, nil) },
		MIMETypePNG:  png.Encode,
	}

	// interpolMap maps interpolator names to their implementations.
	// Supported values: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear".
	interpolMap = map[string]draw.Interpolator{
		"nearestneighbor": draw.NearestNeighbor,
		"catmullrom":      draw.CatmullRom,
		"bilinear":        draw.BiLinear,
		"approxbilinear":  draw.ApproxBiLinear,
	}
)

// Config holds configuration for upload preparation.
type Config struct {
	// MaxSize is the maximum accepted file size in bytes
	MaxSize int64 `env:"MAX_SIZE" default:"10485760"` // 10 MiB

	// MaxWidth is the pixel width above which images are downscaled
	// before upload
	MaxWidth int `env:"MAX_WIDTH" default:"1080"`

	// Interpolator selects the scaling algorithm
	Interpolator string `env:"INTERPOLATOR" default:"catmullrom"`
}

// Image is a validated, upload-ready image file.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// SniffMIMEType determines the image format from the file's magic bytes.
// Returns domain.ErrImageTypeNotSupported for anything that is not JPEG,
// PNG or TIFF.
func SniffMIMEType(data []byte) (string, error) {
	for mimeType, headers := range imageMagicHeaders {
		for _, header := range headers {
			if len(data) >= len(header) && string(data[:len(header)]) == header {
				return mimeType, nil
			}
		}
	}

	return "", domain.ErrImageTypeNotSupported
}

// Load validates raw file data as an uploadable image: size limit, magic
// byte sniffing and a full decode so broken files are rejected locally
// instead of round-tripping to the server.
func Load(name string, data []byte, cfg Config) (Image, error) {
	//nolint:exhaustruct
	var zero Image

	if int64(len(data)) > cfg.MaxSize {
		return zero, fmt.Errorf("%w: %d exceeds %d", domain.ErrImageTooLarge, len(data), cfg.MaxSize)
	}

	mimeType, err := SniffMIMEType(data)
	if err != nil {
		return zero, fmt.Errorf("sniff type: %w", err)
	}

	if _, err := decodeImage(bytes.NewReader(data), mimeType); err != nil {
		return zero, fmt.Errorf("decode image: %w", err)
	}

	return Image{
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// Downscale resizes the image to cfg.MaxWidth while maintaining aspect
// ratio, re-encoding in the original format. Images at or below the limit
// are returned unchanged.
func (img Image) Downscale(cfg Config) (Image, error) {
	original, err := decodeImage(bytes.NewReader(img.Data), img.MIMEType)
	if err != nil {
		return img, fmt.Errorf("decode image: %w", err)
	}

	if original.Bounds().Dx() <= cfg.MaxWidth {
		return img, nil
	}

	ratio := float64(cfg.MaxWidth) / float64(original.Bounds().Dx())
	height := int(float64(original.Bounds().Dy()) * ratio)

	bitmap := image.NewRGBA(image.Rect(0, 0, cfg.MaxWidth, height))

	interpol, err := getInterpolatorByName(cfg.Interpolator)
	if err != nil {
		return img, fmt.Errorf("get interpolator: %w", err)
	}

	interpol.Scale(bitmap, bitmap.Bounds(), original, original.Bounds(), draw.Over, nil)

	resized, err := encodeImage(bitmap, img.MIMEType)
	if err != nil {
		return img, fmt.Errorf("encode image: %w", err)
	}

	return Image{
		Name:     img.Name,
		MIMEType: img.MIMEType,
		Data:     resized,
	}, nil
}

// File converts the image into a multipart file part under the given form
// field name.
func (img Image) File(field string) gateway.File {
	return gateway.File{
		Field: field,
		Name:  img.Name,
		Data:  img.Data,
	}
}

func decodeImage(reader io.Reader, mimeType string) (image.Image, error) {
	decoder, ok := imageDecoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	decoded, err := decoder(reader)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return decoded, nil
}

func encodeImage(img image.Image, mimeType string) ([]byte, error) {
	encoder, ok := imageEncoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	var buf bytes.Buffer
	if err := encoder(&buf, img); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return buf.Bytes(), nil
}

func getInterpolatorByName(name string) (draw.Interpolator, error) {
	interpol, ok := interpolMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown interpolator %q", domain.ErrImageTypeNotSupported, name)
	}

	return interpol, nil
}
