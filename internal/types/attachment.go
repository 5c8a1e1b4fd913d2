package types

import "time"

// ImageMeta is the decoded geometry of an image attachment.
type ImageMeta struct {
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Format        string     `json:"format"`
	ExifCreatedAt *time.Time `json:"exif_created_at,omitempty"`
}

// AttachmentMeta carries the derived metadata of an uploaded file. Error
// records a non-fatal metadata extraction failure.
type AttachmentMeta struct {
	Image *ImageMeta        `json:"image,omitempty"`
	Exif  map[string]string `json:"exif,omitempty"`
	Error string            `json:"error,omitempty"`
}

// PendingAttachment is an upload not yet assigned to a note. Numbers are
// sequential per space.
type PendingAttachment struct {
	Number    int64          `json:"number"`
	Author    string         `json:"author"`
	Filename  string         `json:"filename"`
	Size      int64          `json:"size"`
	MimeType  string         `json:"mime_type"`
	Meta      AttachmentMeta `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}

// Attachment is a file assigned to a note (or space-scoped when NoteNumber is
// nil). Numbers are sequential within their scope.
type Attachment struct {
	SpaceSlug  string         `json:"space_slug"`
	NoteNumber *int64         `json:"note_number,omitempty"`
	Number     int64          `json:"number"`
	Author     string         `json:"author"`
	Filename   string         `json:"filename"`
	Size       int64          `json:"size"`
	MimeType   string         `json:"mime_type"`
	Meta       AttachmentMeta `json:"meta"`
	CreatedAt  time.Time      `json:"created_at"`
}
