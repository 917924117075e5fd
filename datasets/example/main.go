package main

// Example command that demonstrates building a split index from the two CSV
// files, creating a lazy-loading image dataset and iterating one batch,
// including conversion into gomlx tensors.
//
// Usage:
//   go run ./example
//
// Note: this example expects the annotations and split CSVs plus the images
// to exist under the repository's assets/ paths. If they are missing the
// example will print an error and exit.

import (
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/Noofbiz/bloomer/datasets"
)

func main() {
	entries, err := datasets.BuildIndex("../assets/annotations.csv", "../assets/splits.csv", datasets.TrainSplit)
	if err != nil {
		log.Fatalf("failed to build train index: %v", err)
	}
	fmt.Printf("Train split: %d examples\n", len(entries))

	pipeline := datasets.NewPipeline(
		datasets.Resize(64, 64),
	)
	ds := datasets.NewImageDataset(entries, "../assets/images", nil, pipeline, false)

	rng := rand.New(rand.NewSource(42))
	loader := datasets.NewLoader("example-train", ds, 8, true, rng, 2)

	batch, err := loader.Next()
	if err == io.EOF {
		log.Fatal("train split is empty")
	}
	if err != nil {
		log.Fatalf("failed to load batch: %v", err)
	}
	fmt.Printf("Loaded batch of %d examples (%dx%d images)\n", batch.Len(), batch.Width, batch.Height)

	flat, err := datasets.MakeImageBatchFlat(batch)
	if err != nil {
		log.Fatalf("failed to flatten batch: %v", err)
	}
	loader.Reset()
	_, inputs, labels, err := loader.Yield()
	if err != nil {
		log.Fatalf("failed to yield tensors: %v", err)
	}

	// We don't depend on any particular tensor API here; just show we have tensors.
	fmt.Printf("Flat batch: %d pixels per example\n", flat.PixelDim)
	fmt.Printf("Created gomlx tensors: inputs=%T labels=%T\n", inputs[0], labels[0])
}
