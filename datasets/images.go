package datasets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ImageDataset provides random access to the decoded, transformed examples of
// one split. It stores only the joined index; every Example call re-opens and
// re-decodes the image file, so memory stays flat and repeated access with a
// deterministic pipeline is reproducible.
type ImageDataset struct {
	entries  []IndexEntry
	root     string
	mapping  *ClassMapping
	pipeline *Pipeline

	// keepNames controls whether Sample.Name is populated. Enabled for the
	// test split so predictions can be attributed back to files.
	keepNames bool
}

// NewImageDataset creates a dataset over the given index entries. File names
// are resolved relative to root (pass "" if they are usable paths already).
// A nil mapping means class names are parsed as integer ids. keepNames should
// be set for the test split.
func NewImageDataset(entries []IndexEntry, root string, mapping *ClassMapping,
	pipeline *Pipeline, keepNames bool) *ImageDataset {
	return &ImageDataset{
		entries:   entries,
		root:      root,
		mapping:   mapping,
		pipeline:  pipeline,
		keepNames: keepNames,
	}
}

// Len returns the number of examples in the split.
func (d *ImageDataset) Len() int { return len(d.entries) }

// Entries returns the underlying index rows.
func (d *ImageDataset) Entries() []IndexEntry { return d.entries }

// Example decodes, transforms and labels the example at index i.
func (d *ImageDataset) Example(i int) (Sample, error) {
	if i < 0 || i >= len(d.entries) {
		return Sample{}, errors.Errorf("index %d out of range [0, %d)", i, len(d.entries))
	}
	entry := d.entries[i]

	label, err := d.resolveLabel(entry.ClassName)
	if err != nil {
		return Sample{}, err
	}

	img, err := decodeImage(filepath.Join(d.root, entry.FileName))
	if err != nil {
		return Sample{}, errors.Wrapf(err, "while reading image for %s", entry.FileName)
	}

	pixels, width, height := d.pipeline.Run(img)
	s := Sample{
		Pixels: pixels,
		Width:  width,
		Height: height,
		Label:  label,
	}
	if d.keepNames {
		s.Name = entry.FileName
	}
	return s, nil
}

func (d *ImageDataset) resolveLabel(className string) (int, error) {
	if d.mapping != nil {
		return d.mapping.Lookup(className)
	}
	return parseClassID(className)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
