package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteReports encodes reports as an indented JSON array.
//
// Parameters:
//   - w: the destination
//   - reports: the reports to write
//
// Returns:
//   - error: an encoding error
func WriteReports(w io.Writer, reports []Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("encode reports: %w", err)
	}
	return nil
}

// WriteReportsFile writes reports to path, replacing any existing file.
func WriteReportsFile(path string, reports []Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := WriteReports(f, reports); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadReports decodes what WriteReports wrote.
func ReadReports(r io.Reader) ([]Report, error) {
	var reports []Report
	if err := json.NewDecoder(r).Decode(&reports); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return reports, nil
}
