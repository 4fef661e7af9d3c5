package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"wxdata/internal/models"
	"wxdata/internal/parser"
	"wxdata/internal/repository"
	"wxdata/internal/station"
	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

// IngestOptions tunes an ingestion run.
type IngestOptions struct {
	Workers     int
	BatchSize   int
	FileTimeout time.Duration
	JobTimeout  time.Duration
}

const defaultBatchSize = 1000

// IngestionService handles weather data ingestion
type IngestionService struct {
	repo       repository.WeatherRepository
	identifier station.Identifier
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
	clock      clockwork.Clock
	opts       IngestOptions
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalFiles  int
	FailedFiles int
	Attempted   int
	Ingested    int
	Duplicates  int
	Skipped     int
	Duration    time.Duration
	Files       []FileResult
}

// FileResult contains per-file ingestion statistics
type FileResult struct {
	Path        string
	StationCode string
	Attempted   int
	Ingested    int
	Duplicates  int
	Skipped     int
	Duration    time.Duration
	Err         error
}

// HasLineErrors reports whether any line was skipped or any file failed
// without aborting the run.
func (r *IngestionResult) HasLineErrors() bool {
	return r.Skipped > 0 || r.FailedFiles > 0
}

func (r *IngestionResult) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	r.Attempted += fr.Attempted
	r.Ingested += fr.Ingested
	r.Duplicates += fr.Duplicates
	r.Skipped += fr.Skipped
	if fr.Err != nil {
		r.FailedFiles++
	}
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	repo repository.WeatherRepository,
	identifier station.Identifier,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	clock clockwork.Clock,
	opts IngestOptions,
) *IngestionService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IngestionService{
		repo:       repo,
		identifier: identifier,
		logger:     logger,
		metrics:    metricsCollector,
		clock:      clock,
		opts:       opts,
	}
}

// IngestDirectory ingests every regular file under dataDir. Per-line parse
// errors and per-file identification or read errors are recorded and the
// run continues. A storage error or the job deadline stops the run; the
// partial result is returned together with the error.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string) (*IngestionResult, error) {
	startTime := s.clock.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": s.opts.BatchSize,
		"workers":    s.opts.Workers,
		"stage":      "INITIALIZATION",
	})

	files, err := discoverFiles(dataDir)
	if err != nil {
		return nil, err
	}

	result := &IngestionResult{TotalFiles: len(files)}

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	jobCtx := ctx
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(jobCtx)
	g.SetLimit(s.opts.Workers)

	var mu sync.Mutex
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fr := s.ingestFile(gctx, path)

			mu.Lock()
			result.add(fr)
			mu.Unlock()

			if fr.Err == nil {
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if repository.IsStorageError(fr.Err) && !errors.Is(fr.Err, context.DeadlineExceeded) {
				return fr.Err
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil && len(result.Files) < len(files) && jobCtx.Err() != nil {
		runErr = jobCtx.Err()
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	result.Duration = s.clock.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	fields := logging.Fields{
		"total_files":   result.TotalFiles,
		"failed_files":  result.FailedFiles,
		"attempted":     result.Attempted,
		"ingested":      result.Ingested,
		"duplicates":    result.Duplicates,
		"skipped":       result.Skipped,
		"duration_secs": result.Duration.Seconds(),
	}

	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) {
			s.metrics.RecordIngestionError("job_timeout")
			runErr = fmt.Errorf("ingestion job timed out after %s: %w", s.opts.JobTimeout, runErr)
		}
		fields["stage"] = "ABORTED"
		s.logger.Error(ctx, "[INGEST_ABORTED] Data ingestion stopped early", fields, runErr)
		return result, runErr
	}

	fields["stage"] = "COMPLETE"
	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", fields)

	return result, nil
}

// discoverFiles walks dir recursively and returns regular, non-hidden files
// in lexical order.
func discoverFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data path %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk data directory: %w", err)
	}
	return files, nil
}

// ingestFile loads one file. Errors are reported in FileResult.Err.
func (s *IngestionService) ingestFile(ctx context.Context, path string) FileResult {
	start := s.clock.Now()
	fr := FileResult{Path: path}

	if s.opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FileTimeout)
		defer cancel()
	}

	log := s.logger.WithFields(logging.Fields{"file_path": path})
	log.Info(ctx, "[INGEST_FILE_START] Ingesting file", logging.Fields{"stage": "FILE_PROCESSING"})

	fr.Err = s.loadFile(ctx, path, &fr, log)
	fr.Duration = s.clock.Since(start)
	s.metrics.IngestionFileDuration.Observe(fr.Duration.Seconds())
	s.metrics.RecordIngested("ingested", fr.Ingested)
	s.metrics.RecordIngested("duplicate", fr.Duplicates)
	s.metrics.RecordIngested("skipped", fr.Skipped)

	fields := logging.Fields{
		"station_code":  fr.StationCode,
		"attempted":     fr.Attempted,
		"ingested":      fr.Ingested,
		"duplicates":    fr.Duplicates,
		"skipped":       fr.Skipped,
		"duration_secs": fr.Duration.Seconds(),
	}
	if fr.Err != nil {
		fields["stage"] = "FILE_FAILED"
		s.metrics.RecordIngestionError(fileErrorType(fr.Err))
		log.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", fields, fr.Err)
		return fr
	}

	fields["stage"] = "FILE_COMPLETE"
	log.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested", fields)
	return fr
}

func (s *IngestionService) loadFile(ctx context.Context, path string, fr *FileResult, log *logging.ContextLogger) error {
	id, err := s.identifier.Identify(path)
	if err != nil {
		return err
	}
	fr.StationCode = id.Code

	stationID, err := s.repo.ResolveStation(ctx, id.Code, id.State)
	if err != nil {
		return err
	}

	rc, err := openDataFile(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	batch := make([]*models.Observation, 0, s.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := s.repo.InsertObservations(ctx, batch)
		if err != nil {
			return err
		}
		fr.Ingested += res.Inserted
		fr.Duplicates += res.Duplicates
		batch = batch[:0]
		return nil
	}

	sc := parser.NewScanner(rc, path)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fr.Attempted++

		reading, err := sc.Reading()
		if err != nil {
			fr.Skipped++
			log.Warn(ctx, "[INGEST_LINE_SKIPPED] Skipping malformed line", logging.Fields{
				"line_number": sc.LineNumber(),
				"error":       err.Error(),
			})
			continue
		}

		batch = append(batch, models.NewObservation(stationID, reading))
		if len(batch) >= s.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		if ferr := flush(); ferr != nil {
			return ferr
		}
		return fmt.Errorf("error reading file: %w", err)
	}

	return flush()
}

// openDataFile opens path, decompressing .gz files.
func openDataFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".gz") {
		return f, nil
	}

	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gzErr
}

func fileErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "file_timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, station.ErrUnidentified):
		return "station_unidentified"
	case repository.IsStorageError(err):
		return "storage_error"
	default:
		return "file_error"
	}
}
