package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Split is the partition tag assigned to each file.
type Split string

const (
	TrainSplit Split = "train"
	ValidSplit Split = "valid"
	TestSplit  Split = "test"
)

// Error kinds surfaced by index building. They are wrapped with context, so
// check them with errors.Is.
var (
	ErrMissingColumn = errors.New("required column missing")
	ErrDuplicateFile = errors.New("duplicate file_name")
	ErrBadSplit      = errors.New("unknown split tag")
)

// LabelRecord is one row of the annotations table.
type LabelRecord struct {
	FileName  string
	ClassName string
}

// SplitRecord is one row of the split-tags table.
type SplitRecord struct {
	FileName string
	Split    Split
}

// IndexEntry is one row of the joined, split-filtered index.
type IndexEntry struct {
	FileName  string
	ClassName string
	Split     Split
}

// readTable opens a CSV file, discovers the listed columns from the header
// (case-insensitive, order-free) and returns the selected values row by row.
func readTable(path string, columns []string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	selected := make([]int, len(columns))
	for i, col := range columns {
		idx, ok := colIndex[col]
		if !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "column %q in %s", col, path)
		}
		selected[i] = idx
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read row of %s", path)
		}
		row := make([]string, len(selected))
		for i, idx := range selected {
			row[i] = strings.TrimSpace(record[idx])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadLabels reads the annotations table. Columns "file_name" and
// "class_name" are required; duplicate file names are rejected.
func LoadLabels(path string) ([]LabelRecord, error) {
	rows, err := readTable(path, []string{"file_name", "class_name"})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	records := make([]LabelRecord, 0, len(rows))
	for _, row := range rows {
		if seen[row[0]] {
			return nil, errors.Wrapf(ErrDuplicateFile, "%q in %s", row[0], path)
		}
		seen[row[0]] = true
		records = append(records, LabelRecord{FileName: row[0], ClassName: row[1]})
	}
	return records, nil
}

// LoadSplits reads the split-tags table. Columns "file_name" and "tag" are
// required; the tag must be one of train, valid or test.
func LoadSplits(path string) ([]SplitRecord, error) {
	rows, err := readTable(path, []string{"file_name", "tag"})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	records := make([]SplitRecord, 0, len(rows))
	for _, row := range rows {
		if seen[row[0]] {
			return nil, errors.Wrapf(ErrDuplicateFile, "%q in %s", row[0], path)
		}
		seen[row[0]] = true
		tag := Split(strings.ToLower(row[1]))
		switch tag {
		case TrainSplit, ValidSplit, TestSplit:
		default:
			return nil, errors.Wrapf(ErrBadSplit, "%q for file %q in %s", row[1], row[0], path)
		}
		records = append(records, SplitRecord{FileName: row[0], Split: tag})
	}
	return records, nil
}

// BuildIndex joins the annotations and split-tags tables by file name and
// returns the rows tagged with the requested split, in annotations-table
// order. Label rows without a matching split record are dropped. An empty
// result is not an error.
func BuildIndex(labelsPath, splitsPath string, split Split) ([]IndexEntry, error) {
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	splits, err := LoadSplits(splitsPath)
	if err != nil {
		return nil, err
	}

	tagByFile := make(map[string]Split, len(splits))
	for _, s := range splits {
		tagByFile[s.FileName] = s.Split
	}

	var entries []IndexEntry
	for _, l := range labels {
		tag, ok := tagByFile[l.FileName]
		if !ok || tag != split {
			continue
		}
		entries = append(entries, IndexEntry{
			FileName:  l.FileName,
			ClassName: l.ClassName,
			Split:     tag,
		})
	}
	return entries, nil
}

// ScanImageDir builds annotation records from a directory tree laid out as
// root/<class name>/<image files>. It is the generation step for the
// annotations CSV the visualization service ingests.
func ScanImageDir(root string) ([]LabelRecord, error) {
	classes, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image directory %s", root)
	}

	var records []LabelRecord
	for _, class := range classes {
		if !class.IsDir() {
			continue
		}
		dir := filepath.Join(root, class.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read class directory %s", dir)
		}
		for _, f := range files {
			if f.IsDir() || !isImageFile(f.Name()) {
				continue
			}
			records = append(records, LabelRecord{
				FileName:  filepath.Join(class.Name(), f.Name()),
				ClassName: class.Name(),
			})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].FileName < records[j].FileName })
	return records, nil
}

// WriteLabels writes annotation records as a CSV with a file_name,class_name
// header, the format the visualization service expects for uploads.
func WriteLabels(path string, records []LabelRecord) error {
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
