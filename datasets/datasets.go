package datasets

// This package loads image-classification data described by two CSV files: an
// annotations table (file_name, class_name) and a split-tags table
// (file_name, tag). The two are joined by file name into a per-split index,
// and images are decoded lazily - the index stores paths and labels only, and
// pixels are read when a batch is assembled. This keeps memory usage flat
// regardless of dataset size.
//
// The same CSV formats are what the external dataset-visualization service
// consumes, so the annotations produced by ScanImageDir and the predictions
// produced by WritePredictions can be uploaded there unchanged.
//
// Notes on gomlx tensors:
//   - Loader implements gomlx's train.Dataset (Name/Yield/Reset) so it can be
//     plugged into gomlx training loops directly. Batches are also available
//     as plain float32 slices via Next for trainers that do not use gomlx;
//     ImageBatchFlat bridges between the two representations.

// Sample is one decoded, transformed example.
type Sample struct {
	// Pixels holds the transformed image as float32 in HWC order
	// (height*width*3 values).
	Pixels []float32

	// Width and Height of the transformed image.
	Width  int
	Height int

	// Label is the integer class id.
	Label int

	// Name is the original file name. Only populated when the dataset was
	// created with keepNames (the test split), so predictions can be
	// attributed back to files.
	Name string
}

// Provider is the minimal random-access interface the Loader needs. It is
// implemented by ImageDataset; tests substitute in-memory providers.
type Provider interface {
	Len() int
	Example(i int) (Sample, error)
}
