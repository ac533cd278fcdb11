package feed

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/types"
)

// CSVFeed provides bar data from a CSV file.
type CSVFeed struct {
	filePath   string
	instrument string
	events     []types.MarketEvent
	loaded     bool
}

// NewCSVFeed creates a feed from a CSV file.
// CSV format: timestamp,open,high,low,close,volume (header optional).
// Timestamps may be Unix seconds or common date formats.
func NewCSVFeed(filePath, instrument string) *CSVFeed {
	return &CSVFeed{
		filePath:   filePath,
		instrument: instrument,
	}
}

// Subscribe starts sending historical market events. The channel
// closes when all data has been sent or the context is cancelled.
func (f *CSVFeed) Subscribe(ctx context.Context, instrument string) (<-chan types.MarketEvent, error) {
	if !f.loaded {
		if err := f.load(); err != nil {
			return nil, err
		}
	}

	ch := make(chan types.MarketEvent, 100)

	go func() {
		defer close(ch)
		for _, event := range f.events {
			if instrument != "" && event.Instrument != instrument {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case ch <- event:
			}
		}
	}()

	return ch, nil
}

// Close releases resources.
func (f *CSVFeed) Close() error {
	f.events = nil
	f.loaded = false
	return nil
}

// Name returns the feed identifier.
func (f *CSVFeed) Name() string {
	return "csv"
}

// EventCount returns the number of loaded events.
func (f *CSVFeed) EventCount() int {
	return len(f.events)
}

func (f *CSVFeed) load() error {
	file, err := os.Open(f.filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	events, err := ParseCSV(file, f.instrument)
	if err != nil {
		return fmt.Errorf("parse %s: %w", f.filePath, err)
	}

	f.events = events
	f.loaded = true
	return nil
}

// ParseCSV parses bar data from a CSV reader. Rows that fail to parse
// are skipped; an out-of-order timestamp is a hard error because the
// engine's no-lookahead guarantee depends on ordered events.
func ParseCSV(r io.Reader, instrument string) ([]types.MarketEvent, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var events []types.MarketEvent
	var last time.Time
	lineNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum+1, err)
		}
		lineNum++

		if lineNum == 1 && isHeader(record) {
			continue
		}
		if len(record) < 5 {
			continue
		}

		event, err := parseRecord(record, instrument)
		if err != nil {
			continue
		}

		if !last.IsZero() && event.Timestamp.Before(last) {
			return nil, fmt.Errorf("%w: line %d: timestamp %s before previous %s",
				types.ErrInvalidData, lineNum, event.Timestamp, last)
		}
		last = event.Timestamp

		events = append(events, event)
	}

	return events, nil
}

func parseRecord(record []string, instrument string) (types.MarketEvent, error) {
	event := types.MarketEvent{
		Kind:       types.EventBar,
		Instrument: instrument,
	}

	ts, err := parseTimestamp(record[0])
	if err != nil {
		return event, fmt.Errorf("parse timestamp: %w", err)
	}
	event.Timestamp = ts

	if event.Open, err = decimal.NewFromString(record[1]); err != nil {
		return event, fmt.Errorf("parse open: %w", err)
	}
	if event.High, err = decimal.NewFromString(record[2]); err != nil {
		return event, fmt.Errorf("parse high: %w", err)
	}
	if event.Low, err = decimal.NewFromString(record[3]); err != nil {
		return event, fmt.Errorf("parse low: %w", err)
	}
	if event.Close, err = decimal.NewFromString(record[4]); err != nil {
		return event, fmt.Errorf("parse close: %w", err)
	}

	if len(record) > 5 {
		if vol, err := strconv.ParseInt(record[5], 10, 64); err == nil {
			event.Volume = vol
		}
	}

	return event, nil
}

// parseTimestamp tries Unix seconds, then common date formats.
func parseTimestamp(s string) (time.Time, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unknown timestamp format: %s", s)
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	headers := []string{"timestamp", "time", "date", "datetime", "open", "high", "low", "close"}
	for _, h := range headers {
		if record[0] == h {
			return true
		}
	}
	return false
}
