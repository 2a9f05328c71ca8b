package ask

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// RunLog appends JSON records to <prefix>_<utc>_<run8>.jsonl and, when
// enabled, mirrors them into a CSV whose header is the first record's key
// order.
type RunLog struct {
	jsonlPath string
	csvPath   string
	jsonl     *os.File
	csvFile   *os.File
	csv       *csv.Writer
	header    []string
}

// RunLogName returns the base file name (without extension) of a run log.
func RunLogName(prefix, runID string, now time.Time) string {
	id := strings.ReplaceAll(runID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s", prefix, now.UTC().Format("20060102T150405Z"), id)
}

// CreateRunLog creates the run log files in dir.
func CreateRunLog(dir, prefix, runID string, now time.Time, withCSV bool) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	base := filepath.Join(dir, RunLogName(prefix, runID, now))

	l := &RunLog{jsonlPath: base + ".jsonl"}
	f, err := os.OpenFile(l.jsonlPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	l.jsonl = f

	if withCSV {
		l.csvPath = base + ".csv"
		cf, err := os.Create(l.csvPath)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open run csv: %w", err)
		}
		l.csvFile = cf
		l.csv = csv.NewWriter(cf)
	}
	return l, nil
}

// JSONLPath returns the JSONL file path.
func (l *RunLog) JSONLPath() string { return l.jsonlPath }

// CSVPath returns the CSV file path, or "" when CSV is disabled.
func (l *RunLog) CSVPath() string { return l.csvPath }

// WriteRecord appends v as one JSON line (and one CSV row).
func (l *RunLog) WriteRecord(v any) error {
	line, err := encodeLine(v)
	if err != nil {
		return err
	}
	if _, err := l.jsonl.Write(line); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	if l.csv == nil {
		return nil
	}

	fields, err := orderedFields(line)
	if err != nil {
		return err
	}
	if l.header == nil {
		l.header = fieldKeys(fields)
		if err := l.csv.Write(l.header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	record, err := csvRecord(l.header, fields)
	if err != nil {
		return err
	}
	if err := l.csv.Write(record); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	l.csv.Flush()
	return l.csv.Error()
}

// WriteRow implements RowSink.
func (l *RunLog) WriteRow(row models.ProbeRow) error {
	return l.WriteRecord(row)
}

// Close flushes and closes the files.
func (l *RunLog) Close() error {
	var errs []error
	if l.csv != nil {
		l.csv.Flush()
		errs = append(errs, l.csv.Error(), l.csvFile.Close())
	}
	errs = append(errs, l.jsonl.Close())
	return errors.Join(errs...)
}

func encodeLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

type field struct {
	key string
	raw json.RawMessage
}

// orderedFields decodes a JSON object keeping its key order.
func orderedFields(line []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("decode record: not a JSON object")
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode record field %q: %w", key, err)
		}
		fields = append(fields, field{key: key, raw: raw})
	}
	return fields, nil
}

func fieldKeys(fields []field) []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// csvRecord renders fields in header order. null becomes an empty cell,
// strings are unquoted, everything else keeps its JSON text. Strings that
// are empty or start with a quote keep their JSON text so they can be told
// apart from null.
func csvRecord(header []string, fields []field) ([]string, error) {
	byKey := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		byKey[f.key] = f.raw
	}
	record := make([]string, len(header))
	for i, key := range header {
		raw, ok := byKey[key]
		if !ok || string(raw) == "null" {
			continue
		}
		if len(raw) > 0 && raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("decode field %q: %w", key, err)
			}
			if s == "" || strings.HasPrefix(s, `"`) {
				record[i] = string(raw)
			} else {
				record[i] = s
			}
			continue
		}
		record[i] = string(raw)
	}
	return record, nil
}

// stringColumns are the ProbeRow columns whose values are JSON strings.
var stringColumns = func() map[string]bool {
	cols := make(map[string]bool)
	t := reflect.TypeOf(models.ProbeRow{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.String {
			cols[name] = true
		}
	}
	return cols
}()

// JSONLToCSV converts a probe JSONL log to CSV. The header is the key order
// of the first line.
func JSONLToCSV(r io.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	var header []string
	err := fileutil.EachLine(r, func(lineNo int, line []byte) error {
		fields, err := orderedFields(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if header == nil {
			header = fieldKeys(fields)
			if err := cw.Write(header); err != nil {
				return err
			}
		}
		record, err := csvRecord(header, fields)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		return cw.Write(record)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// CSVToJSONL converts a probe CSV back to JSONL. Empty cells become null,
// JSON string literals are kept as written, string columns are quoted and
// other columns keep their literal text.
func CSVToJSONL(r io.Reader, w io.Writer) error {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, key := range header {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := encodeString(key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')

			cell := ""
			if i < len(record) {
				cell = record[i]
			}
			v, err := encodeCell(key, cell)
			if err != nil {
				return err
			}
			buf.Write(v)
		}
		buf.WriteString("}\n")
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
}

func encodeCell(key, cell string) ([]byte, error) {
	switch {
	case cell == "":
		return []byte("null"), nil
	case strings.HasPrefix(cell, `"`) && json.Valid([]byte(cell)):
		return []byte(cell), nil
	case stringColumns[key]:
		return encodeString(cell)
	case json.Valid([]byte(cell)):
		return []byte(cell), nil
	default:
		return encodeString(cell)
	}
}

func encodeString(s string) ([]byte, error) {
	line, err := encodeLine(s)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(line, []byte("\n")), nil
}
