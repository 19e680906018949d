package core

// importer.go implements the batch coordinator.
//
// One file is one batch and one transaction:
//
//	Opening -> HeaderValidation -> RowLoop -> Committing -> Done
//	                                  \            \
//	                                   +-> RollingBack -> Failed
//
// Every data row runs inside its own SAVEPOINT. A row that fails to normalize
// or to write is rolled back to its savepoint and recorded as a row error, and
// the batch continues. Errors that leave the transaction in an unknown state
// (savepoint failures, read errors, cancellation, commit failure) roll back
// the whole batch.

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/JonMunkholm/carimport/internal/logging"
)

// Columns stamped on every row of a Stamped table.
const (
	ColumnUsername = "username"
	ColumnToken    = "token"
)

// DefaultProgressEvery is how many rows pass between progress callbacks.
const DefaultProgressEvery = 100

// Options configures an Importer.
type Options struct {
	// Delimiter separates cells. 0 detects it from the header line.
	Delimiter rune

	// Encoding of the input file: utf-8 (default), iso-8859-1 or windows-1252.
	Encoding string

	Normalize NormalizeOptions

	// RequireColumns enforces the table's required header columns.
	RequireColumns bool

	// Username is stamped when the context carries no user.
	Username string

	ProgressEvery int
	OnProgress    ProgressCallback

	// Runs receives a summary of every batch when set.
	Runs RunLog

	// Now is the clock used for tokens and timings. Defaults to time.Now.
	Now func() time.Time
}

// Importer runs import batches against a store.
// An Importer is safe for concurrent use; each call runs its own batch.
type Importer struct {
	store Store
	opts  Options
}

// NewImporter creates an importer writing through store.
func NewImporter(store Store, opts Options) *Importer {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Importer{store: store, opts: opts}
}

// batch carries the state of one import call.
type batch struct {
	def      TableDefinition
	progress Progress
	started  time.Time
	fileName string
	checksum string
	log      *slog.Logger

	normalizer *Normalizer
	resolver   *Resolver
	upserter   *Upserter
	username   string
	token      int64
}

// ImportFile imports the CSV file at path into the table.
//
// On success the result holds the committed counts and the per-row errors.
// On a fatal error nothing is written and the returned error is a *BatchError
// wrapping one of ErrFileNotFound, ErrFileUnreadable, ErrEmptyFile,
// *MissingColumnsError or the underlying storage error.
func (im *Importer) ImportFile(ctx context.Context, tableKey, path string) (*Result, error) {
	b, err := im.newBatch(ctx, tableKey, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, im.fail(ctx, b, PhaseOpening, fmt.Errorf("%w: %s", ErrFileNotFound, path))
		}
		return nil, im.fail(ctx, b, PhaseOpening, fmt.Errorf("%w: %v", ErrFileUnreadable, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, im.fail(ctx, b, PhaseOpening, fmt.Errorf("%w: %v", ErrFileUnreadable, err))
	}
	if info.IsDir() {
		return nil, im.fail(ctx, b, PhaseOpening, fmt.Errorf("%w: %s is a directory", ErrFileUnreadable, path))
	}

	return im.run(ctx, b, f, info.Size())
}

// ImportReader imports CSV data from r. name is used for logging and the run log;
// size is the input length for progress reporting (0 if unknown).
func (im *Importer) ImportReader(ctx context.Context, tableKey, name string, r io.Reader, size int64) (*Result, error) {
	b, err := im.newBatch(ctx, tableKey, name)
	if err != nil {
		return nil, err
	}
	return im.run(ctx, b, r, size)
}

func (im *Importer) newBatch(ctx context.Context, tableKey, name string) (*batch, error) {
	def, ok := Get(tableKey)
	if !ok {
		return nil, &BatchError{Phase: PhaseOpening, Err: fmt.Errorf("%w: %s", ErrUnknownTable, tableKey)}
	}

	id := uuid.New().String()
	started := im.opts.Now()

	username := UsernameFromContext(ctx)
	if username == "" {
		username = im.opts.Username
	}

	b := &batch{
		def:      def,
		started:  started,
		fileName: name,
		username: username,
		token:    started.Unix(),
		log:      logging.WithFields(ctx, "import_id", id, "table", tableKey, "file", name),
		resolver: NewResolver(def.Info.Key, def.Info.IdentityKeys),
		upserter: NewUpserter(def.Info.Key),
		progress: Progress{ImportID: id, TableKey: tableKey, Phase: PhaseOpening},
	}
	im.emit(b)
	return b, nil
}

func (im *Importer) run(ctx context.Context, b *batch, r io.Reader, size int64) (*Result, error) {
	digest := xxhash.New()
	counter := NewCountingReader(io.TeeReader(r, digest), size)

	decoded, err := NewDecodingReader(counter, im.opts.Encoding)
	if err != nil {
		return nil, im.fail(ctx, b, PhaseOpening, err)
	}

	br := bufio.NewReaderSize(decoded, sniffSize)
	delim := im.opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	// Header
	b.setPhase(PhaseHeaderValidation)
	im.emit(b)

	header, err := cr.Read()
	if err == io.EOF || (err == nil && populatedCells(header) == 0) {
		return nil, im.fail(ctx, b, PhaseHeaderValidation, ErrEmptyFile)
	}
	if err != nil {
		return nil, im.fail(ctx, b, PhaseHeaderValidation, fmt.Errorf("%w: %v", ErrFileUnreadable, err))
	}

	if im.opts.RequireColumns {
		if _, err := ValidateHeaders(header, b.def.RequiredColumns()); err != nil {
			return nil, im.fail(ctx, b, PhaseHeaderValidation, err)
		}
	}

	b.normalizer = NewNormalizer(b.def.Schema(), header, im.opts.Normalize).WithLogger(b.log)
	if unknown := b.normalizer.Unknown(); len(unknown) > 0 {
		b.log.Warn("header has unknown columns",
			"columns", unknown,
			"kept", im.opts.Normalize.PassUnknown,
		)
	}

	// Row loop
	tx, err := im.store.Begin(ctx)
	if err != nil {
		return nil, im.fail(ctx, b, PhaseRowLoop, fmt.Errorf("begin transaction: %w", err))
	}

	b.setPhase(PhaseRowLoop)
	im.emit(b)

	result := &Result{
		ImportID: b.progress.ImportID,
		TableKey: b.def.Info.Key,
		FileName: b.fileName,
		Header:   header,
	}

	if err := im.loop(ctx, tx, b, cr, counter, result); err != nil {
		im.rollback(ctx, tx, b)
		return nil, im.fail(ctx, b, PhaseRowLoop, err)
	}

	// Commit
	b.setPhase(PhaseCommitting)
	im.emit(b)

	if err := tx.Commit(ctx); err != nil {
		im.rollback(ctx, tx, b)
		return nil, im.fail(ctx, b, PhaseCommitting, fmt.Errorf("commit: %w", err))
	}

	b.checksum = hex.EncodeToString(digest.Sum(nil))
	result.Checksum = b.checksum
	result.Duration = im.opts.Now().Sub(b.started)

	b.setPhase(PhaseDone)
	im.emit(b)

	b.log.Info("import committed",
		"rows", result.TotalRows,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", len(result.RowErrors),
		"duration_ms", result.Duration.Milliseconds(),
	)

	im.recordRun(ctx, b, result, nil)
	return result, nil
}

// loop processes data rows until EOF. A returned error is fatal for the batch.
func (im *Importer) loop(ctx context.Context, tx Tx, b *batch, cr *csv.Reader, counter *CountingReader, result *Result) error {
	line := 1 // header

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read row %d: %w", line, err)
		}

		result.TotalRows++
		b.progress.Row = line

		if populatedCells(row) < 2 {
			result.Skipped++
			continue
		}

		outcome, err := im.processRow(ctx, tx, b, line, row)
		if err != nil {
			var f fatal
			if errors.As(err, &f) {
				return f.err
			}
			result.RowErrors = append(result.RowErrors, RowError{Line: line, Reason: err.Error(), Data: row})
			b.progress.Failed++
			b.log.Warn("row failed", "row", line, "error", err)
			continue
		}

		switch outcome {
		case OutcomeCreated:
			result.Created++
			b.progress.Created++
		case OutcomeUpdated:
			result.Updated++
			b.progress.Updated++
		case OutcomeSkipped:
			result.Skipped++
		}

		if result.TotalRows%im.opts.ProgressEvery == 0 {
			b.progress.BytesRead = counter.BytesRead
			b.progress.Percent = counter.Percent()
			im.emit(b)
		}
	}
}

// processRow runs one row inside a savepoint. Row-level failures are rolled
// back to the savepoint; savepoint failures are returned as fatal.
func (im *Importer) processRow(ctx context.Context, tx Tx, b *batch, line int, row []string) (Outcome, error) {
	sp := fmt.Sprintf("sp_%d", line)
	if err := tx.Savepoint(ctx, sp); err != nil {
		return OutcomeFailed, fatal{fmt.Errorf("create savepoint: %w", err)}
	}

	outcome, err := im.applyRow(ctx, tx, b, row)
	if err != nil {
		if rbErr := tx.RollbackTo(ctx, sp); rbErr != nil {
			return OutcomeFailed, fatal{fmt.Errorf("rollback to savepoint: %w", rbErr)}
		}
		return OutcomeFailed, err
	}

	if err := tx.Release(ctx, sp); err != nil {
		return OutcomeFailed, fatal{fmt.Errorf("release savepoint: %w", err)}
	}
	return outcome, nil
}

// applyRow normalizes, resolves and writes one row. A panic anywhere in the
// row is converted into a row error.
func (im *Importer) applyRow(ctx context.Context, tx Tx, b *batch, row []string) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	rec, err := b.normalizer.Normalize(row)
	if err != nil {
		return OutcomeFailed, err
	}
	if len(rec) == 0 {
		return OutcomeSkipped, nil
	}

	if b.def.Stamped {
		if b.username != "" {
			rec[ColumnUsername] = b.username
		}
		rec[ColumnToken] = b.token
	}

	key, err := b.resolver.Resolve(ctx, tx, rec)
	if err != nil {
		return OutcomeFailed, err
	}

	return b.upserter.Apply(ctx, tx, rec, key)
}

func (im *Importer) rollback(ctx context.Context, tx Tx, b *batch) {
	b.setPhase(PhaseRollingBack)
	im.emit(b)

	// The batch context may already be cancelled; the rollback must still run.
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		b.log.Error("rollback failed", "error", err)
	}
}

func (im *Importer) fail(ctx context.Context, b *batch, phase Phase, err error) error {
	b.setPhase(PhaseFailed)
	im.emit(b)

	b.log.Error("import failed", "phase", phase, "error", err)
	im.recordRun(ctx, b, nil, err)

	return &BatchError{Phase: phase, Err: err}
}

// recordRun writes the batch summary to the run log. Failures are logged only;
// the batch outcome is already decided.
func (im *Importer) recordRun(ctx context.Context, b *batch, result *Result, runErr error) {
	if im.opts.Runs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	run := ImportRun{
		ID:         b.progress.ImportID,
		TableKey:   b.def.Info.Key,
		FileName:   b.fileName,
		Checksum:   b.checksum,
		StartedAt:  b.started,
		FinishedAt: im.opts.Now(),
		Status:     RunCommitted,
	}
	if result != nil {
		run.Created = result.Created
		run.Updated = result.Updated
		run.Skipped = result.Skipped
		run.Failed = len(result.RowErrors)
	}
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}

	if run.Checksum != "" {
		prev, found, err := im.opts.Runs.FindRunByChecksum(ctx, run.TableKey, run.Checksum)
		if err != nil {
			b.log.Warn("checksum lookup failed", "error", err)
		} else if found {
			b.log.Warn("file was imported before",
				"previous_import_id", prev.ID,
				"previous_started_at", prev.StartedAt,
			)
		}
	}

	if err := im.opts.Runs.RecordRun(ctx, run); err != nil {
		b.log.Error("record import run", "error", err)
	}
}

func (b *batch) setPhase(p Phase) {
	b.progress.Phase = p
	b.log.Debug("phase", "phase", p)
}

func (im *Importer) emit(b *batch) {
	if im.opts.OnProgress != nil {
		im.opts.OnProgress(b.progress)
	}
}
