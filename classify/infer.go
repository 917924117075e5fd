package classify

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Noofbiz/bloomer/datasets"
)

// Infer runs a forward-only pass over the test loader and returns one
// prediction record per file, in iteration order, plus the accuracy against
// the ground-truth labels carried in the batches. Class ids are mapped back
// to names via classes; with a nil classes slice the id itself is used.
//
// The test loader must carry file names (its dataset created with keepNames);
// a duplicate file name is an error rather than a silent overwrite.
func (t *Trainer) Infer(test *datasets.Loader, classes []string) ([]datasets.PredictionRecord, float64, error) {
	test.Reset()

	seen := make(map[string]bool)
	var records []datasets.PredictionRecord
	var correct, total int
	for {
		batch, err := test.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		for ex := range batch.Len() {
			name := batch.Names[ex]
			if name == "" {
				return nil, 0, errors.Errorf("test sample %d carries no file name", total+ex)
			}
			if seen[name] {
				return nil, 0, errors.Wrapf(datasets.ErrDuplicateFile, "%q in test split", name)
			}
			seen[name] = true

			features, err := t.Backbone.Features(batch.Inputs[ex])
			if err != nil {
				return nil, 0, err
			}
			logits, err := t.Head.Forward(features)
			if err != nil {
				return nil, 0, err
			}
			predicted := argmax(logits)
			if predicted == batch.Labels[ex] {
				correct++
			}
			records = append(records, datasets.PredictionRecord{
				FileName:  name,
				ClassName: className(predicted, classes),
			})
		}
		total += batch.Len()
	}
	if total == 0 {
		return nil, 0, errors.New("inference pass yielded no samples")
	}
	return records, 100.0 * float64(correct) / float64(total), nil
}

func className(id int, classes []string) string {
	if id >= 0 && id < len(classes) {
		return classes[id]
	}
	return strconv.Itoa(id)
}
