package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

type seriesParquetRecord struct {
	Instrument   string  `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp    int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	OkxRate      float64 `parquet:"name=okx_rate, type=DOUBLE"`
	BybitRate    float64 `parquet:"name=bybit_rate, type=DOUBLE"`
	Differential float64 `parquet:"name=differential, type=DOUBLE"`
}

type seriesMemFile struct {
	buffer *bytes.Buffer
}

func newSeriesMemFile() *seriesMemFile {
	return &seriesMemFile{buffer: &bytes.Buffer{}}
}

func (m *seriesMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *seriesMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *seriesMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *seriesMemFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *seriesMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *seriesMemFile) Close() error                              { return nil }
func (m *seriesMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// SeriesWriter archives each candidate's differential series as a parquet
// file on disk and, when storage is enabled, mirrors it to S3.
type SeriesWriter struct {
	cfg      *appconfig.Config
	uploader *S3Uploader
	log      *logger.Log
}

// NewSeriesWriter creates the writer. uploader may be nil when S3 storage
// is disabled.
func NewSeriesWriter(cfg *appconfig.Config, uploader *S3Uploader) *SeriesWriter {
	return &SeriesWriter{cfg: cfg, uploader: uploader, log: logger.GetLogger()}
}

// Write persists one instrument's differential series.
func (w *SeriesWriter) Write(ctx context.Context, instrument string, points []model.DifferentialPoint) error {
	if len(points) == 0 {
		return nil
	}

	data, err := w.createParquet(instrument, points)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s_%s_%s.parquet",
		strings.ToUpper(instrument),
		time.Now().UTC().Format("20060102150405"),
		uuid.NewString(),
	)

	if err := os.MkdirAll(w.cfg.Writer.SeriesDir, 0o755); err != nil {
		return fmt.Errorf("create series dir: %w", err)
	}
	local := filepath.Join(w.cfg.Writer.SeriesDir, filename)
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return fmt.Errorf("write series file: %w", err)
	}

	entry := w.log.WithComponent("series_writer").WithFields(logger.Fields{
		"instrument": instrument,
		"points":     len(points),
		"path":       local,
	})

	if w.uploader != nil {
		key := filepath.ToSlash(filepath.Join(
			w.cfg.Storage.S3.Prefix,
			fmt.Sprintf("instrument=%s", strings.ToUpper(instrument)),
			fmt.Sprintf("date=%s", time.Now().UTC().Format("2006-01-02")),
			filename,
		))
		if err := w.uploader.Upload(ctx, key, data); err != nil {
			// The local copy is the source of truth; a failed mirror is
			// reported but does not fail the candidate.
			entry.WithError(err).Warn("series upload to s3 failed")
		} else {
			entry = entry.WithFields(logger.Fields{"s3_key": key})
		}
	}

	entry.Info("differential series archived")
	return nil
}

func (w *SeriesWriter) createParquet(instrument string, points []model.DifferentialPoint) ([]byte, error) {
	mem := newSeriesMemFile()
	pw, err := writer.NewParquetWriter(mem, new(seriesParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, p := range points {
		rec := seriesParquetRecord{
			Instrument:   instrument,
			Timestamp:    p.Timestamp.UnixMilli(),
			OkxRate:      p.OkxRate,
			BybitRate:    p.BybitRate,
			Differential: p.Differential,
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write series record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize series parquet: %w", err)
	}
	return mem.Bytes(), nil
}
