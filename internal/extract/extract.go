// Package extract runs a full export: manifest checks, store resolution,
// contact directory, message join and CSV output, strictly in that order.
package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/msgextract/internal/backup"
	"github.com/Napageneral/msgextract/internal/contacts"
	"github.com/Napageneral/msgextract/internal/db"
	"github.com/Napageneral/msgextract/internal/export"
	"github.com/Napageneral/msgextract/internal/messages"
	"github.com/Napageneral/msgextract/internal/normalize"
)

// Options configures a run.
type Options struct {
	BackupDir  string // the device backup directory (holding Manifest.db)
	OutputPath string
	Region     string         // assumed country for numbers without one; empty = US
	Driver     string         // database/sql driver name; empty = modernc
	Location   *time.Location // timezone for formatted dates; nil = local
	Logger     *slog.Logger
}

// Result contains statistics about an extraction run
type Result struct {
	RunID           string              `json:"run_id"`
	BackupDir       string              `json:"backup_dir"`
	OutputPath      string              `json:"output_path,omitempty"`
	Region          string              `json:"region"`
	ContactsLoaded  int                 `json:"contacts_loaded"`
	MessagesWritten int                 `json:"messages_written"`
	Unmatched       int                 `json:"unmatched"`
	Skipped         []normalize.Skipped `json:"skipped,omitempty"`
	Duration        time.Duration       `json:"duration"`
	// Perf is a breakdown of phase timings (human-readable durations).
	Perf map[string]string `json:"perf,omitempty"`
}

type run struct {
	opts    Options
	logger  *slog.Logger
	norm    *normalize.Normalizer
	res     *Result
	smsPath string
}

func newRun(opts Options) *run {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := &Result{
		RunID:      uuid.New().String(),
		BackupDir:  opts.BackupDir,
		OutputPath: opts.OutputPath,
		Perf:       map[string]string{},
	}
	logger = logger.With("run_id", res.RunID)
	norm := normalize.New(opts.Region, logger)
	res.Region = norm.Region()
	return &run{opts: opts, logger: logger, norm: norm, res: res}
}

// Run performs the export described by opts. Any failure before the CSV is
// written aborts the run with no output file. Unparseable identifiers never
// fail a run; they are reported in Result.Skipped.
func Run(ctx context.Context, opts Options) (*Result, error) {
	r := newRun(opts)
	defer r.finish(time.Now())

	dir, err := r.directory(ctx)
	if err != nil {
		return r.res, err
	}

	t := time.Now()
	rows, err := r.messageRows(ctx)
	if err != nil {
		return r.res, err
	}
	records := messages.Join(rows, dir, r.norm, opts.Location)
	r.res.Unmatched = messages.Unmatched(records)
	r.res.Perf["join_duration"] = time.Since(t).String()

	t = time.Now()
	if err := export.WriteCSVFile(opts.OutputPath, records); err != nil {
		return r.res, fmt.Errorf("failed to write %s: %w", opts.OutputPath, err)
	}
	r.res.MessagesWritten = len(records)
	r.res.Perf["export_duration"] = time.Since(t).String()

	r.logger.Info("extraction complete",
		"messages", r.res.MessagesWritten,
		"contacts", r.res.ContactsLoaded,
		"unmatched", r.res.Unmatched,
		"skipped", len(r.norm.Skipped()),
		"output", opts.OutputPath,
	)
	return r.res, nil
}

// Contacts runs the manifest, resolution and directory steps only and returns
// the resulting directory.
func Contacts(ctx context.Context, opts Options) (contacts.Directory, *Result, error) {
	r := newRun(opts)
	defer r.finish(time.Now())

	dir, err := r.directory(ctx)
	if err != nil {
		return nil, r.res, err
	}
	return dir, r.res, nil
}

// directory covers steps 1-4: manifest presence, encryption flag, store
// resolution and the contact directory build.
func (r *run) directory(ctx context.Context) (contacts.Directory, error) {
	t := time.Now()
	if err := backup.CheckManifest(r.opts.BackupDir); err != nil {
		return nil, err
	}
	desc, err := backup.ReadDescriptor(r.opts.BackupDir)
	if err != nil {
		return nil, err
	}
	if desc.IsEncrypted {
		return nil, backup.ErrEncryptedBackup
	}

	smsPath, abPath, err := backup.ResolveStores(ctx, r.opts.BackupDir, r.opts.Driver)
	if err != nil {
		return nil, err
	}
	r.smsPath = smsPath
	r.res.Perf["manifest_duration"] = time.Since(t).String()
	r.logger.Debug("resolved stores", "sms", smsPath, "address_book", abPath)

	t = time.Now()
	addressBook, err := r.openStore(abPath, backup.AddressBookFilename)
	if err != nil {
		return nil, err
	}
	defer addressBook.Close()

	dir, err := contacts.Load(ctx, addressBook, r.norm)
	if err != nil {
		return nil, err
	}
	r.res.ContactsLoaded = len(dir)
	r.res.Perf["contacts_duration"] = time.Since(t).String()
	r.logger.Debug("built contact directory", "keys", len(dir))
	return dir, nil
}

func (r *run) messageRows(ctx context.Context) ([]messages.RawRow, error) {
	store, err := r.openStore(r.smsPath, backup.SMSDBFilename)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return messages.LoadRows(ctx, store)
}

func (r *run) openStore(path, name string) (*sql.DB, error) {
	store, err := db.Open(path, r.opts.Driver)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (%s)", backup.ErrRequiredFileMissing, name, path)
	}
	return store, err
}

func (r *run) finish(start time.Time) {
	r.res.Skipped = r.norm.Skipped()
	r.res.Duration = time.Since(start)
	r.res.Perf["total"] = r.res.Duration.String()
}
