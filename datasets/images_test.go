package datasets

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writePNG writes a width x height image whose pixels follow a deterministic
// pattern seeded by tone, so different files are distinguishable.
func writePNG(t *testing.T, path string, width, height int, tone uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: tone,
				G: uint8((x*16 + int(tone)) % 256),
				B: uint8((y*16 + int(tone)) % 256),
				A: 255,
			})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func flowerMapping() *ClassMapping {
	return NewClassMapping([]string{
		"pink primrose",
		"hard-leaved pocket orchid",
		"canterbury bells",
	})
}

func TestImageDatasetMappingLookup(t *testing.T) {
	tmp := t.TempDir()
	writePNG(t, filepath.Join(tmp, "a.png"), 8, 8, 10)

	entries := []IndexEntry{
		// Mixed case on purpose: lookups are case-insensitive.
		{FileName: "a.png", ClassName: "Pink Primrose", Split: TrainSplit},
	}
	ds := NewImageDataset(entries, tmp, flowerMapping(), NewPipeline(), false)

	if got := ds.Len(); got != 1 {
		t.Fatalf("expected len 1, got %d", got)
	}
	s, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example(0) error: %v", err)
	}
	if s.Label != 0 {
		t.Fatalf("expected label 0 for \"Pink Primrose\", got %d", s.Label)
	}
	if s.Width != 8 || s.Height != 8 {
		t.Fatalf("unexpected dims %dx%d", s.Width, s.Height)
	}
	if len(s.Pixels) != 8*8*3 {
		t.Fatalf("unexpected pixel buffer length %d", len(s.Pixels))
	}
}

func TestImageDatasetUnknownClass(t *testing.T) {
	tmp := t.TempDir()
	writePNG(t, filepath.Join(tmp, "a.png"), 8, 8, 10)

	entries := []IndexEntry{{FileName: "a.png", ClassName: "sunflower", Split: TrainSplit}}
	ds := NewImageDataset(entries, tmp, flowerMapping(), NewPipeline(), false)

	_, err := ds.Example(0)
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestImageDatasetIntegerLabels(t *testing.T) {
	tmp := t.TempDir()
	writePNG(t, filepath.Join(tmp, "a.png"), 8, 8, 10)
	writePNG(t, filepath.Join(tmp, "b.png"), 8, 8, 20)

	entries := []IndexEntry{
		{FileName: "a.png", ClassName: "2", Split: TrainSplit},
		{FileName: "b.png", ClassName: "rose", Split: TrainSplit},
	}
	ds := NewImageDataset(entries, tmp, nil, NewPipeline(), false)

	s, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example(0) error: %v", err)
	}
	if s.Label != 2 {
		t.Fatalf("expected parsed label 2, got %d", s.Label)
	}

	if _, err := ds.Example(1); err == nil {
		t.Fatalf("expected parse error for non-numeric class name without mapping")
	}
}

func TestImageDatasetDeterministic(t *testing.T) {
	tmp := t.TempDir()
	writePNG(t, filepath.Join(tmp, "a.png"), 16, 12, 77)

	entries := []IndexEntry{{FileName: "a.png", ClassName: "0", Split: TrainSplit}}
	pipeline := NewPipeline(Resize(8, 8))
	ds := NewImageDataset(entries, tmp, nil, pipeline, false)

	first, err := ds.Example(0)
	if err != nil {
		t.Fatalf("first Example error: %v", err)
	}
	second, err := ds.Example(0)
	if err != nil {
		t.Fatalf("second Example error: %v", err)
	}
	if len(first.Pixels) != len(second.Pixels) {
		t.Fatalf("pixel lengths differ: %d vs %d", len(first.Pixels), len(second.Pixels))
	}
	for i := range first.Pixels {
		if first.Pixels[i] != second.Pixels[i] {
			t.Fatalf("pixel %d differs between calls: %v vs %v", i, first.Pixels[i], second.Pixels[i])
		}
	}
	if first.Label != second.Label {
		t.Fatalf("labels differ between calls: %d vs %d", first.Label, second.Label)
	}
}

func TestImageDatasetKeepNames(t *testing.T) {
	tmp := t.TempDir()
	writePNG(t, filepath.Join(tmp, "a.png"), 8, 8, 10)
	entries := []IndexEntry{{FileName: "a.png", ClassName: "0", Split: TestSplit}}

	withNames := NewImageDataset(entries, tmp, nil, NewPipeline(), true)
	s, err := withNames.Example(0)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	if s.Name != "a.png" {
		t.Fatalf("expected name to be kept for test split, got %q", s.Name)
	}

	withoutNames := NewImageDataset(entries, tmp, nil, NewPipeline(), false)
	s, err = withoutNames.Example(0)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	if s.Name != "" {
		t.Fatalf("expected name to be omitted, got %q", s.Name)
	}
}

func TestImageDatasetMissingImage(t *testing.T) {
	tmp := t.TempDir()
	entries := []IndexEntry{{FileName: "missing.png", ClassName: "0", Split: TrainSplit}}
	ds := NewImageDataset(entries, tmp, nil, NewPipeline(), false)

	if _, err := ds.Example(0); err == nil {
		t.Fatalf("expected error for missing image file")
	}
}

func TestClassMappingInverse(t *testing.T) {
	m := flowerMapping()
	if m.Len() != 3 {
		t.Fatalf("expected 3 classes, got %d", m.Len())
	}
	id, err := m.Lookup("CANTERBURY BELLS")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if id != 2 {
		t.Fatalf("expected id 2, got %d", id)
	}
	if name := m.Name(2); name != "canterbury bells" {
		t.Fatalf("expected inverse name, got %q", name)
	}
	if name := m.Name(17); name != "" {
		t.Fatalf("expected empty name for out-of-range id, got %q", name)
	}
}
