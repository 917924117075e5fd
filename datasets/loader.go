package datasets

import (
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Batch is one group of samples, in permutation order. The last batch of a
// pass may be smaller than the configured batch size.
type Batch struct {
	Inputs [][]float32
	Labels []int
	Names  []string

	// Width and Height of the transformed images in this batch.
	Width  int
	Height int
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int { return len(b.Inputs) }

// Loader batches samples from a Provider. Each pass covers every index
// exactly once; with shuffling enabled a fresh permutation is drawn at the
// start of each pass. Decode/transform work within one batch may run on a
// bounded worker pool, but batch contents and order always follow the
// permutation.
type Loader struct {
	name      string
	ds        Provider
	batchSize int
	shuffle   bool
	workers   int
	rng       *rand.Rand
	dtype     dtypes.DType

	order []int
	pos   int
}

// Assert Loader is a gomlx train.Dataset.
var _ train.Dataset = &Loader{}

// NewLoader creates a Loader over ds. batchSize must be positive. If shuffle
// is set, rng drives a fresh permutation per pass (pass a seeded rng for
// reproducible runs). workers > 1 enables concurrent decode/transform of the
// samples composing one batch.
func NewLoader(name string, ds Provider, batchSize int, shuffle bool, rng *rand.Rand, workers int) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	l := &Loader{
		name:      name,
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		workers:   workers,
		rng:       rng,
		dtype:     dtypes.Float32,
	}
	l.Reset()
	return l
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// WithDType sets the dtype used for tensors produced by Yield. Returns the
// loader for chaining.
func (l *Loader) WithDType(dtype dtypes.DType) *Loader {
	l.dtype = dtype
	return l
}

// NumBatches returns the number of batches in one full pass.
func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Reset implements train.Dataset. It restarts the pass, drawing a new
// permutation when shuffling is enabled.
func (l *Loader) Reset() {
	n := l.ds.Len()
	if len(l.order) != n {
		l.order = make([]int, n)
		for i := range l.order {
			l.order[i] = i
		}
	}
	if l.shuffle && l.rng != nil {
		l.rng.Shuffle(n, func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Next returns the next batch of the pass, or io.EOF when the pass is done.
// If any sample fails to load, the whole batch fails.
func (l *Loader) Next() (*Batch, error) {
	if l.pos >= len(l.order) {
		return nil, io.EOF
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	indices := l.order[l.pos:end]
	l.pos = end
	return l.loadBatch(indices)
}

// loadBatch assembles samples for the given dataset indices, preserving their
// order regardless of worker concurrency: each worker writes into its
// sample's slot.
func (l *Loader) loadBatch(indices []int) (*Batch, error) {
	samples := make([]Sample, len(indices))

	workers := l.workers
	if workers > len(indices) {
		workers = len(indices)
	}
	if workers <= 1 {
		for pos, idx := range indices {
			s, err := l.ds.Example(idx)
			if err != nil {
				return nil, err
			}
			samples[pos] = s
		}
	} else {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error
		posChan := make(chan int)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for pos := range posChan {
					s, err := l.ds.Example(indices[pos])
					if err != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
						continue
					}
					samples[pos] = s
				}
			}()
		}
		for pos := range indices {
			posChan <- pos
		}
		close(posChan)
		wg.Wait()
		if firstErr != nil {
			return nil, firstErr
		}
	}

	batch := &Batch{
		Inputs: make([][]float32, len(samples)),
		Labels: make([]int, len(samples)),
		Names:  make([]string, len(samples)),
	}
	for i, s := range samples {
		batch.Inputs[i] = s.Pixels
		batch.Labels[i] = s.Label
		batch.Names[i] = s.Name
		if i == 0 {
			batch.Width, batch.Height = s.Width, s.Height
		} else if s.Width != batch.Width || s.Height != batch.Height {
			return nil, errors.Errorf(
				"inconsistent image dimensions in batch: sample 0 is %dx%d, sample %d is %dx%d",
				batch.Width, batch.Height, i, s.Width, s.Height)
		}
	}
	return batch, nil
}

// Yield implements train.Dataset: it returns the next batch converted to
// gomlx tensors, with io.EOF ending the pass.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	batch, err := l.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	flat, err := MakeImageBatchFlat(batch)
	if err != nil {
		return nil, nil, nil, err
	}
	inT, labT, err := flat.ToGomlxTensors(l.dtype)
	if err != nil {
		return nil, nil, nil, err
	}
	return l, []*tensors.Tensor{inT}, []*tensors.Tensor{labT}, nil
}

// ImageBatchFlat stores a batch in flat contiguous buffers along with shape
// metadata, ready for conversion into gomlx tensors.
type ImageBatchFlat struct {
	Pixels    []float32
	Labels    []int32
	BatchSize int
	PixelDim  int
}

// MakeImageBatchFlat flattens a batch into contiguous buffers.
func MakeImageBatchFlat(batch *Batch) (*ImageBatchFlat, error) {
	if batch.Len() == 0 {
		return &ImageBatchFlat{}, nil
	}
	pixelDim := len(batch.Inputs[0])
	flat := &ImageBatchFlat{
		Pixels:    make([]float32, batch.Len()*pixelDim),
		Labels:    make([]int32, batch.Len()),
		BatchSize: batch.Len(),
		PixelDim:  pixelDim,
	}
	for i, in := range batch.Inputs {
		if len(in) != pixelDim {
			return nil, errors.Errorf("inconsistent pixel dimensions at example %d: expected %d, got %d",
				i, pixelDim, len(in))
		}
		copy(flat.Pixels[i*pixelDim:], in)
		flat.Labels[i] = int32(batch.Labels[i])
	}
	return flat, nil
}

// ToGomlxTensors converts the flat batch into gomlx tensors: inputs shaped
// [batch, pixelDim] and labels shaped [batch], cast to the given dtype.
func (b *ImageBatchFlat) ToGomlxTensors(dtype dtypes.DType) (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 || b.PixelDim == 0 {
		emptyInputs := make([][]float32, 0)
		emptyLabels := make([]int32, 0)
		return tensors.FromAnyValue(emptyInputs), tensors.FromAnyValue(emptyLabels), nil
	}
	inputs := make([][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Pixels[i*b.PixelDim : (i+1)*b.PixelDim]
	}
	inT := tensors.FromAnyValue(inputs)
	labT := tensors.FromAnyValue(shapes.CastAsDType(b.Labels, dtype))
	return inT, labT, nil
}
