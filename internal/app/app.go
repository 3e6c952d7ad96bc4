package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"ilp-go/internal/archive"
	"ilp-go/internal/cache"
	"ilp-go/internal/config"
	"ilp-go/internal/database"
	"ilp-go/internal/encryption"
	"ilp-go/internal/grading"
	"ilp-go/internal/ilp"
	"ilp-go/internal/spool"
)

// ILPApp is the application layer between the CLI and the provisioning
// service. It constructs all dependencies from config, exposes the CLI's
// operations, and manages the DB lifecycle on Close.
type ILPApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	archive   ilp.Archive
	encryptor ilp.Encryptor
	spool     ilp.Spool
	cache     cache.Cache
	processor *ilp.Processor
	logger    ilp.Logger
	run       *Run
	logFile   *os.File
}

// NewILPApp creates a fully wired ILPApp from the given config.
// command identifies the CLI command being run (e.g. "course handle").
// The caller must call Close when done.
func NewILPApp(cfg *config.Config, command string) (*ILPApp, error) {
	settings, err := cfg.Provisioning.Settings()
	if err != nil {
		return nil, fmt.Errorf("reading provisioning settings: %w", err)
	}

	arch, err := archive.NewArchiveFromConfig(cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	if arch != nil {
		if err := arch.ValidateSetup(); err != nil {
			return nil, fmt.Errorf("archive %s: %w", cfg.Archive.Name, err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil && !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run 'ilp config init' or set encryption type to none")
	}

	sp, err := spool.NewSpoolFromConfig(cfg.Spool)
	if err != nil {
		return nil, fmt.Errorf("creating spool: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	c, err := cache.NewCacheFromConfig(cfg.Cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating context cache: %w", err)
	}

	clock := ilp.RealClock{}
	run := NewRun(command, clock)
	slogger, logFile, err := newLogger(cfg.LogDir, run.ID)
	if err != nil {
		c.Close()
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	formatter := grading.NewFormatter(cfg.Grading.GradeDecimals())
	svc := ilp.NewServiceFromSettings(db, db, c, formatter, settings, clock, logger)
	proc := ilp.NewProcessor(svc, db, arch, enc, sp, clock, ilp.UUIDGenerator{}, logger)

	logger.Debug("run started", "command", command, "instance", cfg.InstanceID)

	return &ILPApp{
		cfg:       cfg,
		db:        db,
		archive:   arch,
		encryptor: enc,
		spool:     sp,
		cache:     c,
		processor: proc,
		logger:    logger,
		run:       run,
		logFile:   logFile,
	}, nil
}

// HandlePayload processes one request payload.
func (a *ILPApp) HandlePayload(payload []byte) (*ilp.Result, error) {
	result, err := a.processor.Process(payload)
	a.run.Record(err)
	return result, err
}

// HandleReader reads a request payload from r and processes it.
func (a *ILPApp) HandleReader(r io.Reader) (*ilp.Result, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}
	return a.HandlePayload(payload)
}

// CourseGrades runs a course_grade_user request for the given course id.
func (a *ILPApp) CourseGrades(courseID int64, pageNumber, perPage int) (*ilp.Result, error) {
	req := &ilp.Request{Action: ilp.ActionGradeReport}
	req.Data.Set("id", strconv.FormatInt(courseID, 10))
	req.Data.Set("pagenumber", strconv.Itoa(pageNumber))
	req.Data.Set("perpage", strconv.Itoa(perPage))

	payload, err := ilp.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	return a.HandlePayload(payload)
}

// SpoolFiles queues each file's contents for later processing.
func (a *ILPApp) SpoolFiles(paths []string) ([]*ilp.SpoolItem, error) {
	items := make([]*ilp.SpoolItem, 0, len(paths))
	for _, path := range paths {
		item, err := a.spoolFile(path)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *ILPApp) spoolFile(path string) (*ilp.SpoolItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return a.processor.Enqueue(path, f)
}

// ProcessSpool handles every queued payload, oldest first.
func (a *ILPApp) ProcessSpool() (int, error) {
	n, err := a.processor.ProcessSpool()
	a.run.Handled += n
	if err != nil {
		a.run.Failed++
	}
	return n, err
}

// SpoolStatus returns the number of queued payloads and their total size.
func (a *ILPApp) SpoolStatus() (int, int64, error) {
	count, err := a.spool.Count()
	if err != nil {
		return 0, 0, fmt.Errorf("counting spool: %w", err)
	}
	size, err := a.spool.Size()
	if err != nil {
		return 0, 0, fmt.Errorf("sizing spool: %w", err)
	}
	return count, size, nil
}

// History returns the most recent sync operations.
func (a *ILPApp) History(limit int) ([]*ilp.SyncOperation, error) {
	return a.processor.History(limit)
}

// ArchiveEncrypted reports whether archived payloads need a passphrase to read.
func (a *ILPApp) ArchiveEncrypted() bool {
	return a.encryptor != nil
}

// ShowArchived writes an archived payload to w. passphrase is only called
// when the archive is encrypted.
func (a *ILPApp) ShowArchived(requestID, name string, passphrase func() (string, error), w io.Writer) error {
	var decryptCtx ilp.DecryptionContext
	if a.encryptor != nil {
		pass, err := passphrase()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		decryptCtx, err = a.encryptor.Unlock(pass)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return a.processor.ShowArchived(requestID, name, decryptCtx, w)
}

// DirtyContexts lists the context paths marked dirty by category changes.
func (a *ILPApp) DirtyContexts() ([]string, error) {
	return a.cache.Dirty()
}

// ClearDirtyContexts forgets the given context paths.
func (a *ILPApp) ClearDirtyContexts(paths []string) error {
	for _, p := range paths {
		if err := a.cache.Clear(p); err != nil {
			return err
		}
	}
	return nil
}

// Close logs the run outcome and closes all resources.
func (a *ILPApp) Close() error {
	if a.run.Handled+a.run.Failed > 0 {
		a.logger.Info("run finished", "command", a.run.Command, "status", a.run.Status(),
			"handled", a.run.Handled, "failed", a.run.Failed)
	}

	var errs []error
	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing context cache: %w", err))
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
