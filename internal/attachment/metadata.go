package attachment

import (
	"bytes"
	"errors"
	"image"
	"io/fs"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	// Decoders for the image formats attachments may carry.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spacenote/spacenote/internal/types"
)

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/tiff": true,
	"image/bmp":  true,
}

// IsImageMime reports whether metadata extraction treats the mime type as an
// image.
func IsImageMime(mimeType string) bool { return imageMimeTypes[mimeType] }

// ExtractMetadata derives attachment metadata from the raw bytes. Extraction
// failures are not fatal: they are recorded in Meta.Error and the upload
// proceeds.
func ExtractMetadata(content []byte, mimeType string) types.AttachmentMeta {
	if !IsImageMime(mimeType) {
		return types.AttachmentMeta{}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return types.AttachmentMeta{Error: "decode image: " + err.Error()}
	}
	meta := types.AttachmentMeta{
		Image: &types.ImageMeta{Width: cfg.Width, Height: cfg.Height, Format: format},
	}

	// EXIF lives in jpeg and tiff containers only; absence is normal.
	if x, err := exif.Decode(bytes.NewReader(content)); err == nil {
		meta.Exif = exifMap(x)
		if t, ok := exifCreatedAt(x); ok {
			meta.Image.ExifCreatedAt = &t
		}
	}
	return meta
}

// exifWalker collects tags into a plain string map.
type exifWalker map[string]string

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if s, err := tag.StringVal(); err == nil {
		w[string(name)] = s
	} else {
		w[string(name)] = tag.String()
	}
	return nil
}

func exifMap(x *exif.Exif) map[string]string {
	w := exifWalker{}
	if err := x.Walk(w); err != nil || len(w) == 0 {
		return nil
	}
	return map[string]string(w)
}

// exifCreatedAt parses DateTimeOriginal, honoring OffsetTimeOriginal when the
// camera recorded one. The result is normalized to UTC.
func exifCreatedAt(x *exif.Exif) (time.Time, bool) {
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, false
	}
	raw, err := tag.StringVal()
	if err != nil {
		return time.Time{}, false
	}

	loc := time.UTC
	if offTag, err := x.Get("OffsetTimeOriginal"); err == nil {
		if off, err := offTag.StringVal(); err == nil {
			if parsed, err := time.Parse("2006:01:02 15:04:05 -07:00", raw+" "+off); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	t, err := time.ParseInLocation("2006:01:02 15:04:05", raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
