package report

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"salesforecast/internal/model"
)

// CSVWriter writes report tables below a base directory.
type CSVWriter struct {
	dir string
}

// NewCSVWriter creates a writer rooted at dir.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // UTF-8 BOM so Excel detects the encoding
}

// WriteCSV writes records to filePath, resolved against the base directory
// unless absolute.
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	fullPath := w.resolvePath(filePath)

	slog.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if options.BOMPrefix && !options.Append {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if !options.Append && len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSimpleCSV writes a fresh file with a BOM.
func (w *CSVWriter) WriteSimpleCSV(filePath string, headers []string, records [][]string) error {
	return w.WriteCSV(filePath, WriteOptions{
		Headers:   headers,
		Records:   records,
		BOMPrefix: true,
	})
}

// WriteComparison writes the ranked evaluation table.
func (w *CSVWriter) WriteComparison(filePath string, rows []model.Ranking) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		mape := ""
		if r.MAPEDefined {
			mape = formatFloat(r.MAPE)
		}
		records[i] = []string{
			strconv.Itoa(r.Rank), r.Model,
			formatFloat(r.RMSE), formatFloat(r.MAE), formatFloat(r.R2), mape,
			strconv.Itoa(r.MAPEExcluded),
		}
	}
	return w.WriteSimpleCSV(filePath, []string{"rank", "model", "rmse", "mae", "r2", "mape", "mape_excluded"}, records)
}

// WriteImportance writes a feature importance table.
func (w *CSVWriter) WriteImportance(filePath string, imp []model.Importance) error {
	records := make([][]string, len(imp))
	for i, f := range imp {
		records[i] = []string{f.Feature, formatFloat(f.Importance)}
	}
	return w.WriteSimpleCSV(filePath, []string{"feature", "importance"}, records)
}

// WritePredictions writes actual and predicted values side by side.
func (w *CSVWriter) WritePredictions(filePath string, sets []PredictionSet) error {
	if len(sets) == 0 {
		return w.WriteSimpleCSV(filePath, []string{"actual"}, nil)
	}
	headers := []string{"actual"}
	for _, s := range sets {
		headers = append(headers, s.Model)
	}
	records := make([][]string, len(sets[0].Actual))
	for i := range records {
		rec := []string{formatFloat(sets[0].Actual[i])}
		for _, s := range sets {
			rec = append(rec, formatFloat(s.Predicted[i]))
		}
		records[i] = rec
	}
	return w.WriteSimpleCSV(filePath, headers, records)
}

// StreamWriter writes CSV rows one at a time.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// CreateStreamWriter opens a streaming writer with a BOM and header row.
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	fullPath := w.resolvePath(filePath)

	slog.Info("Creating CSV stream writer",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("header_count", len(headers)))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}
	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord writes a single record to the stream
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the stream writer
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.dir == "" {
		return filePath
	}
	return filepath.Join(w.dir, filePath)
}

// formatFloat uses 4 decimals, enough for R² and importances.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
