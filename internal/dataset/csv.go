package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// CSVOptions describes the layout of a digit CSV file: one row per sample,
// the label in the first column followed by Size*Size pixel values in
// row-major order.
type CSVOptions struct {
	Size      int
	HasHeader bool
	// Scale multiplies every pixel; use 1.0/255 for 8-bit data. Zero means 1.
	Scale float64
}

// LoadCSV reads a labelled image set from r.
func LoadCSV(r io.Reader, opts CSVOptions) (*Set, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("dataset: image size must be positive, got %d", opts.Size)
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 1 + opts.Size*opts.Size
	reader.ReuseRecord = true

	set := &Set{}
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: failed to read csv: %w", err)
		}
		if row == 0 && opts.HasHeader {
			continue
		}

		label, err := strconv.Atoi(record[0])
		if err != nil || label < 0 || label > 9 {
			return nil, fmt.Errorf("dataset: invalid label %q at row %d", record[0], row)
		}
		img := tensor.NewVolume(1, opts.Size, opts.Size)
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: failed to parse value at row %d, col %d: %w", row, j+1, err)
			}
			img.Data[j] = v * scale
		}
		set.Images = append(set.Images, img)
		set.Labels = append(set.Labels, label)
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("dataset: csv has no data rows")
	}
	return set, nil
}

// LoadCSVFile reads a labelled image set from the named file.
func LoadCSVFile(filename string, opts CSVOptions) (*Set, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to open file: %w", err)
	}
	defer file.Close()
	return LoadCSV(file, opts)
}
