package image

import (
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"

	// Source decoders for rendition input.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spacenote/spacenote/internal/errs"
)

// webpQuality is the fixed lossy encoding quality of all renditions.
const webpQuality = 85

// Options control an on-demand WebP conversion.
type Options struct {
	// MaxWidth caps the output width, preserving aspect ratio. Nil means no
	// scaling. Images are never upscaled.
	MaxWidth *int
}

// ParseOptions parses the conversion option string, "" or "max_width:<n>".
func ParseOptions(option string) (Options, error) {
	if option == "" {
		return Options{}, nil
	}
	key, value, ok := strings.Cut(option, ":")
	if !ok {
		return Options{}, errs.Validation("invalid option format %q, expected key:value", option)
	}
	if key != "max_width" {
		return Options{}, errs.Validation("unknown option %q, supported: max_width", key)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return Options{}, errs.Validation("invalid max_width value %q, expected integer", value)
	}
	if n <= 0 {
		return Options{}, errs.Validation("max_width must be positive, got %d", n)
	}
	return Options{MaxWidth: &n}, nil
}

// ConvertWebP re-encodes an image as lossy WebP, downscaling to maxWidth when
// the source is wider. Transparent and paletted sources come out opaque.
func ConvertWebP(content []byte, maxWidth *int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, errs.Validation("decode image: %v", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxWidth != nil && width > *maxWidth {
		height = height * *maxWidth / width
		if height < 1 {
			height = 1
		}
		width = *maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	flattenAlpha(dst)

	var out bytes.Buffer
	if err := webp.Encode(&out, dst, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return out.Bytes(), nil
}

// flattenAlpha forces full opacity, matching the RGB re-encode of the upload
// pipeline.
func flattenAlpha(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}
