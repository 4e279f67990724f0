package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

type CSVConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FileName         string `yaml:"file_name"`
	DateFormat       string `yaml:"date_format"`
	TimeFormat       string `yaml:"time_format"`
	DecimalSeparator string `yaml:"decimal_separator"`
	Delimiter        string `yaml:"delimiter"`
}

func (c *CSVConfig) ApplyDefaults() {
	if c.DateFormat == "" {
		c.DateFormat = "2006-01-02"
	}
	if c.TimeFormat == "" {
		c.TimeFormat = "15:04:05"
	}
	if c.DecimalSeparator == "" {
		c.DecimalSeparator = "."
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
}

var csvHeader = []string{"Date:", "Time:", "Radiation [uSv/h]:", "CPM:"}

// CSVFile appends one row per measurement: local date, local time, radiation, CPM.
type CSVFile struct {
	lifecycle
	cfg    CSVConfig
	loc    *time.Location
	file   *os.File
	writer *csv.Writer
}

func NewCSVFile(cfg CSVConfig) (*CSVFile, error) {
	s := &CSVFile{loc: time.Local}
	if !cfg.Enabled {
		return s, nil
	}
	cfg.ApplyDefaults()
	if cfg.FileName == "" {
		return nil, fmt.Errorf("csvfile: file_name is required")
	}
	if utf8.RuneCountInString(cfg.Delimiter) != 1 {
		return nil, fmt.Errorf("csvfile: delimiter must be a single character, got %q", cfg.Delimiter)
	}
	delim, _ := utf8.DecodeRuneInString(cfg.Delimiter)

	f, err := os.OpenFile(cfg.FileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvfile: could not open log file to write: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csvfile: stat %s: %w", cfg.FileName, err)
	}

	w := csv.NewWriter(f)
	w.Comma = delim
	if st.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csvfile: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csvfile: write header: %w", err)
		}
	}

	s.cfg = cfg
	s.file = f
	s.writer = w
	s.enabled.Store(true)
	return s, nil
}

func (s *CSVFile) Name() string { return "csvfile" }

func (s *CSVFile) Update(_ context.Context, m domain.Measurement) error {
	if s.writer == nil {
		return sinkErr(s.Name(), "file is not open")
	}
	local := m.Timestamp.In(s.loc)
	row := []string{
		local.Format(s.cfg.DateFormat),
		local.Format(s.cfg.TimeFormat),
		formatValue(m.Radiation, s.cfg.DecimalSeparator),
		formatValue(m.CPM, s.cfg.DecimalSeparator),
	}
	if err := s.writer.Write(row); err != nil {
		return sinkErr(s.Name(), "could not write row: %v", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return sinkErr(s.Name(), "could not write row: %v", err)
	}
	return nil
}

func (s *CSVFile) Close() error {
	s.disable()
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := s.file.Close()
	s.file = nil
	s.writer = nil
	return err
}

var _ ports.Sink = (*CSVFile)(nil)
