package datastore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

// ErrEmptyFile is returned when a price file has no header.
var ErrEmptyFile = errors.New("empty price file")

// LoadPriceMatrixCSV reads a price file from disk. Two layouts are accepted:
//
//	wide: date,SYM1,SYM2,...   one row per timestamp
//	long: time,symbol,price    one row per observation
//
// The long layout is detected from its header and pivoted into a dense
// matrix. Any missing or non-positive price is an error.
func LoadPriceMatrixCSV(filePath string) (*marketdata.PriceMatrix, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	m, err := ReadPriceMatrix(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	logger.Infof("Loaded %d bars x %d symbols from %s", m.Len(), len(m.Symbols), filePath)
	return m, nil
}

// ReadPriceMatrix parses either CSV layout from r.
func ReadPriceMatrix(r io.Reader) (*marketdata.PriceMatrix, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if isLongHeader(header) {
		return readLong(reader)
	}
	return readWide(reader, header)
}

func isLongHeader(header []string) bool {
	return len(header) == 3 &&
		strings.EqualFold(strings.TrimSpace(header[1]), "symbol") &&
		strings.EqualFold(strings.TrimSpace(header[2]), "price")
}

func readWide(reader *csv.Reader, header []string) (*marketdata.PriceMatrix, error) {
	if len(header) < 2 {
		return nil, fmt.Errorf("csv header needs a time column and at least one symbol, got %d columns", len(header))
	}
	symbols := make([]string, len(header)-1)
	for j, h := range header[1:] {
		symbols[j] = strings.TrimSpace(h)
	}

	var (
		timestamps []time.Time
		values     [][]float64
	)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}

		ts, err := parseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, len(symbols))
		for j, sym := range symbols {
			cell := strings.TrimSpace(record[j+1])
			if cell == "" {
				return nil, fmt.Errorf("line %d: %w: %s", line, marketdata.ErrMissingPrice, sym)
			}
			p, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: price for %s: %w", line, sym, err)
			}
			row[j] = p
		}
		timestamps = append(timestamps, ts)
		values = append(values, row)
	}

	m, err := marketdata.NewPriceMatrix(timestamps, symbols, values)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func readLong(reader *csv.Reader) (*marketdata.PriceMatrix, error) {
	var records []PriceRecord
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}

		ts, err := parseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: price for %s: %w", line, record[1], err)
		}
		records = append(records, PriceRecord{Time: ts, Symbol: strings.TrimSpace(record[1]), Price: p})
	}
	return PivotPrices(records, nil)
}

func parseTime(timeStr string) (time.Time, error) {
	timeStr = strings.TrimSpace(timeStr)
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time '%s' with any known format", timeStr)
}

// WritePriceMatrix writes m in the wide layout. Midnight UTC timestamps are
// written as plain dates.
func WritePriceMatrix(w io.Writer, m *marketdata.PriceMatrix) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"date"}, m.Symbols...)); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(m.Symbols)+1)
	for i, ts := range m.Timestamps {
		record[0] = formatTime(ts)
		for j, v := range m.Values[i] {
			record[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
