package progress

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/rescale/rescale-intake/internal/contentid"
	"github.com/rescale/rescale-intake/internal/registry"
)

// Gallery renders the attachments of one widget. The widget drives it one
// way and never reads rendering state back.
type Gallery interface {
	// NewPreview creates the visual entry for a file about to upload
	NewPreview(name string, kind PreviewKind, size int64) Preview

	// RenderExisting shows attachments that were present at construction
	RenderExisting(recs []registry.Record)

	// Remove drops the entry bound to contentID
	Remove(contentID string)

	// Clear drops every entry
	Clear()
}

// Preview is a handle to a single file's entry in a Gallery
type Preview interface {
	// UpdateProgress updates the entry based on a fraction (0.0 to 1.0)
	UpdateProgress(fraction float64)

	// Bind ties the entry to its accepted attachment
	Bind(rec registry.Record)

	// Discard removes an entry whose upload did not end in an attachment
	Discard()
}

// PreviewKind tells a gallery how to depict a file.
type PreviewKind struct {
	Image bool   // Render the content itself
	Label string // Type label for placeholders, e.g. "PDF"
}

// KindOf derives the preview kind from a file name.
func KindOf(name string) PreviewKind {
	ext := contentid.Extension(name)
	mt := mime.TypeByExtension(filepath.Ext(name))
	return PreviewKind{
		Image: strings.HasPrefix(mt, "image/"),
		Label: strings.ToUpper(ext),
	}
}

// NoOpGallery renders nothing.
type NoOpGallery struct{}

func (NoOpGallery) NewPreview(name string, kind PreviewKind, size int64) Preview { return noOpPreview{} }
func (NoOpGallery) RenderExisting(recs []registry.Record)                         {}
func (NoOpGallery) Remove(contentID string)                                       {}
func (NoOpGallery) Clear()                                                        {}

type noOpPreview struct{}

func (noOpPreview) UpdateProgress(fraction float64) {}
func (noOpPreview) Bind(rec registry.Record)        {}
func (noOpPreview) Discard()                        {}
