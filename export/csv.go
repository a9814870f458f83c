package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteCSV writes records with the keys of the first record as the header.
// Every field is quoted and rows are separated by a single newline with no
// trailing newline. An empty slice writes nothing.
func WriteCSV(w io.Writer, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	header := records[0].Keys()
	lines := make([]string, 0, len(records)+1)

	fields := make([]string, len(header))
	for i, k := range header {
		fields[i] = quote(k)
	}
	lines = append(lines, strings.Join(fields, ","))

	for i := range records {
		for j, k := range header {
			fields[j] = quote(records[i].Get(k))
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// ReadCSV parses the output of WriteCSV, or any CSV whose header uses record
// keys. Unknown columns are an error.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var check Record
	for _, k := range header {
		if !check.Set(k, "") {
			return nil, fmt.Errorf("unknown column %q", k)
		}
	}

	var out []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(out)+1, err)
		}
		var rec Record
		for i, k := range header {
			rec.Set(k, row[i])
		}
		out = append(out, rec)
	}
	return out, nil
}
