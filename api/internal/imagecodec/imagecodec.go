// Package imagecodec crops captured viewport rasters and re-encodes them for
// transport.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"lens-capture/api/internal/util"
)

type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
)

var ErrEmptyCrop = errors.New("empty crop rectangle")

// Rect is a rectangle in viewport CSS pixels.
type Rect struct {
	X, Y, W, H float64
}

// ParseFormat maps a name or MIME type to a Format. Unknown values yield PNG.
func ParseFormat(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "image/")
	switch s {
	case "jpg", "jpeg":
		return JPEG
	case "webp":
		return WebP
	default:
		return PNG
	}
}

func (f Format) MIME() string {
	return "image/" + string(f)
}

// Decode reads PNG, JPEG or WebP bytes. WebP decoding is registered by
// golang.org/x/image/webp.
func Decode(b []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeDataURL decodes a base64 payload that may carry a data: prefix.
func DecodeDataURL(s string) (image.Image, error) {
	b, _, err := util.DecodeBase64MaybeDataURL(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return Decode(b)
}

// Crop cuts r out of img. r is in CSS pixels and is scaled by dpr to raster
// pixels; the result is clipped to the image bounds.
func Crop(img image.Image, r Rect, dpr float64) (image.Image, error) {
	if dpr <= 0 {
		dpr = 1
	}
	b := img.Bounds()
	x0 := b.Min.X + int(math.Round(r.X*dpr))
	y0 := b.Min.Y + int(math.Round(r.Y*dpr))
	x1 := b.Min.X + int(math.Round((r.X+r.W)*dpr))
	y1 := b.Min.Y + int(math.Round((r.Y+r.H)*dpr))

	rect := image.Rect(x0, y0, x1, y1).Intersect(b)
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}
	return imaging.Crop(img, rect), nil
}

// Encode writes img in the given format.
func Encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	case WebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

// CropDataURL decodes a captured viewport, crops r at dpr and returns the
// selection as plain base64 with its MIME type.
func CropDataURL(dataURL string, r Rect, dpr float64, f Format) (b64, mime string, err error) {
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", "", err
	}
	cropped, err := Crop(img, r, dpr)
	if err != nil {
		return "", "", err
	}
	out, err := Encode(cropped, f)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(out), f.MIME(), nil
}

// EncodeDataURL encodes img and wraps it in a data: URL.
func EncodeDataURL(img image.Image, f Format) (string, error) {
	b, err := Encode(img, f)
	if err != nil {
		return "", err
	}
	return util.MakeDataURL(f.MIME(), base64.StdEncoding.EncodeToString(b)), nil
}
