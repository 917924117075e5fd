package datasets

import (
	"fmt"
	"io"
	"math/rand"
	"testing"
)

// stubProvider serves in-memory samples; index i gets label i so batch order
// is observable. failAt >= 0 makes that index fail.
type stubProvider struct {
	n      int
	failAt int
}

func newStubProvider(n int) *stubProvider {
	return &stubProvider{n: n, failAt: -1}
}

func (p *stubProvider) Len() int { return p.n }

func (p *stubProvider) Example(i int) (Sample, error) {
	if i == p.failAt {
		return Sample{}, fmt.Errorf("stub failure at %d", i)
	}
	return Sample{
		Pixels: []float32{float32(i), float32(i) * 2, float32(i) * 3},
		Width:  1,
		Height: 1,
		Label:  i,
		Name:   fmt.Sprintf("img%d.png", i),
	}, nil
}

// collectPass drains one full pass and returns batch sizes and the
// concatenated labels.
func collectPass(t *testing.T, l *Loader) (sizes []int, labels []int) {
	t.Helper()
	for {
		batch, err := l.Next()
		if err == io.EOF {
			return sizes, labels
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		sizes = append(sizes, batch.Len())
		labels = append(labels, batch.Labels...)
	}
}

func TestLoaderBatchingOrdered(t *testing.T) {
	const n, b = 10, 3
	l := NewLoader("test", newStubProvider(n), b, false, nil, 1)

	if got := l.NumBatches(); got != 4 {
		t.Fatalf("NumBatches: got %d want 4", got)
	}

	sizes, labels := collectPass(t, l)
	if len(sizes) != 4 {
		t.Fatalf("expected ceil(10/3)=4 batches, got %d", len(sizes))
	}
	wantSizes := []int{3, 3, 3, 1}
	total := 0
	for i, s := range sizes {
		if s != wantSizes[i] {
			t.Fatalf("batch %d size: got %d want %d", i, s, wantSizes[i])
		}
		total += s
	}
	if total != n {
		t.Fatalf("batch sizes sum to %d, want %d", total, n)
	}
	for i, lab := range labels {
		if lab != i {
			t.Fatalf("unshuffled pass out of order at %d: got label %d", i, lab)
		}
	}
}

func TestLoaderShufflePermutation(t *testing.T) {
	const n, b = 100, 7
	rng := rand.New(rand.NewSource(1))
	l := NewLoader("test", newStubProvider(n), b, true, rng, 1)

	_, first := collectPass(t, l)
	seen := make(map[int]bool, n)
	for _, lab := range first {
		if seen[lab] {
			t.Fatalf("index %d yielded twice in one pass", lab)
		}
		seen[lab] = true
	}
	if len(seen) != n {
		t.Fatalf("pass covered %d indices, want %d", len(seen), n)
	}

	// A new pass draws a fresh permutation.
	l.Reset()
	_, second := collectPass(t, l)
	same := true
	for i := range first {
		if first[i] != second[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected a fresh permutation on Reset")
	}
}

func TestLoaderResetRestartsPass(t *testing.T) {
	l := NewLoader("test", newStubProvider(5), 2, false, nil, 1)

	sizes, _ := collectPass(t, l)
	if len(sizes) != 3 {
		t.Fatalf("first pass: got %d batches want 3", len(sizes))
	}
	if _, err := l.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after pass, got %v", err)
	}

	l.Reset()
	sizes, labels := collectPass(t, l)
	if len(sizes) != 3 || len(labels) != 5 {
		t.Fatalf("second pass incomplete: %d batches, %d labels", len(sizes), len(labels))
	}
}

func TestLoaderWorkersPreserveOrder(t *testing.T) {
	const n, b = 23, 4
	sequential := NewLoader("seq", newStubProvider(n), b, false, nil, 1)
	parallel := NewLoader("par", newStubProvider(n), b, false, nil, 8)

	_, seqLabels := collectPass(t, sequential)
	_, parLabels := collectPass(t, parallel)

	if len(seqLabels) != len(parLabels) {
		t.Fatalf("label counts differ: %d vs %d", len(seqLabels), len(parLabels))
	}
	for i := range seqLabels {
		if seqLabels[i] != parLabels[i] {
			t.Fatalf("worker pool changed order at %d: %d vs %d", i, seqLabels[i], parLabels[i])
		}
	}
}

func TestLoaderFailurePropagates(t *testing.T) {
	p := newStubProvider(10)
	p.failAt = 5
	l := NewLoader("test", p, 4, false, nil, 4)

	// First batch (0..3) is fine, second (4..7) contains the failure.
	if _, err := l.Next(); err != nil {
		t.Fatalf("first batch should succeed: %v", err)
	}
	if _, err := l.Next(); err == nil {
		t.Fatalf("expected the batch containing the failing sample to fail")
	}
}

func TestLoaderYieldTensors(t *testing.T) {
	l := NewLoader("test", newStubProvider(4), 2, false, nil, 1)

	yields := 0
	for {
		_, inputs, labels, err := l.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield error: %v", err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("expected one input and one label tensor, got %d/%d", len(inputs), len(labels))
		}
		if inputs[0] == nil || labels[0] == nil {
			t.Fatalf("Yield returned nil tensor(s)")
		}
		yields++
	}
	if yields != 2 {
		t.Fatalf("expected 2 yields, got %d", yields)
	}
}

func TestMakeImageBatchFlat(t *testing.T) {
	batch := &Batch{
		Inputs: [][]float32{{1, 2, 3}, {4, 5, 6}},
		Labels: []int{0, 2},
		Names:  []string{"", ""},
		Width:  1,
		Height: 1,
	}
	flat, err := MakeImageBatchFlat(batch)
	if err != nil {
		t.Fatalf("MakeImageBatchFlat error: %v", err)
	}
	if flat.BatchSize != 2 || flat.PixelDim != 3 {
		t.Fatalf("unexpected flat dims: %+v", flat)
	}
	want := []float32{1, 2, 3, 4, 5, 6}
	for i, v := range want {
		if flat.Pixels[i] != v {
			t.Fatalf("flat pixel %d: got %v want %v", i, flat.Pixels[i], v)
		}
	}
	if flat.Labels[0] != 0 || flat.Labels[1] != 2 {
		t.Fatalf("unexpected flat labels: %v", flat.Labels)
	}

	batch.Inputs[1] = []float32{4, 5}
	if _, err := MakeImageBatchFlat(batch); err == nil {
		t.Fatalf("expected error for inconsistent pixel dimensions")
	}
}

func TestLoaderInconsistentDims(t *testing.T) {
	p := &raggedProvider{}
	l := NewLoader("test", p, 2, false, nil, 1)
	if _, err := l.Next(); err == nil {
		t.Fatalf("expected error for inconsistent image dimensions in batch")
	}
}

type raggedProvider struct{}

func (raggedProvider) Len() int { return 2 }

func (raggedProvider) Example(i int) (Sample, error) {
	size := 1 + i // 1x1 then 2x2
	return Sample{
		Pixels: make([]float32, size*size*3),
		Width:  size,
		Height: size,
	}, nil
}
