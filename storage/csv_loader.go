package storage

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"property-comparator/models"
)

// LoadCSV reads a property export whose header row names raw record fields.
// Cells are trimmed; empty cells are left out of the record so they read as
// absent.
func LoadCSV(path string) ([]models.RawPropertyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %q", path)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: read %q", path)
	}
	return records, nil
}

// ReadCSV parses CSV rows from r. See LoadCSV.
func ReadCSV(r io.Reader) ([]models.RawPropertyRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var out []models.RawPropertyRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read line %d", line)
		}

		rec := make(models.RawPropertyRecord, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if v := strings.TrimSpace(cell); v != "" {
				rec[header[i]] = v
			}
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}
