package datasets

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"
)

// PredictionRecord is one predicted class for one test file.
type PredictionRecord struct {
	FileName  string
	ClassName string
}

// WritePredictions writes prediction records as a CSV with a
// file_name,class_name header, one row per file. The output matches the
// annotations format so the visualization service can overlay predictions
// against ground truth.
func WritePredictions(path string, records []PredictionRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"file_name", "class_name"}); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, r := range records {
		if err := writer.Write([]string{r.FileName, r.ClassName}); err != nil {
			return errors.Wrapf(err, "failed to write row for %s", r.FileName)
		}
	}
	writer.Flush()
	return errors.Wrapf(writer.Error(), "failed to flush %s", path)
}

// ReadPredictions reads a predictions CSV written by WritePredictions.
func ReadPredictions(path string) ([]PredictionRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}
	if len(header) < 2 || header[0] != "file_name" || header[1] != "class_name" {
		return nil, errors.Wrapf(ErrMissingColumn, "unexpected header %v in %s", header, path)
	}

	var records []PredictionRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read row of %s", path)
		}
		records = append(records, PredictionRecord{FileName: row[0], ClassName: row[1]})
	}
	return records, nil
}
