// Package backup snapshots the SQLite database, compresses it with zstd and
// uploads it to object storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/r2client"
)

// Suffix ends every backup object key.
const Suffix = ".db.zst"

// ErrInProgress is returned when a backup is already running.
var ErrInProgress = errors.New("backup already in progress")

// Snapshotter writes a consistent copy of the database to dest.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Store is the object storage backups go to.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	List(ctx context.Context, prefix string) ([]r2client.Object, error)
	Delete(ctx context.Context, key string) error
}

// Config controls key layout and retention.
type Config struct {
	Prefix string // e.g. "backups/"
	Keep   int    // Newest backups kept after an upload; 0 keeps all
}

// Result describes a finished backup.
type Result struct {
	Key             string
	RawBytes        int64
	CompressedBytes int64
	Duration        time.Duration
	Pruned          int
}

// Service runs backups one at a time.
type Service struct {
	db     Snapshotter
	store  Store
	cfg    Config
	logger *logger.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a backup service.
func New(db Snapshotter, store Store, cfg Config, log *logger.Logger) *Service {
	return &Service{
		db:     db,
		store:  store,
		cfg:    cfg,
		logger: log.WithModule("backup"),
		now:    time.Now,
	}
}

// Run takes, compresses and uploads one snapshot, then prunes old backups.
// A prune failure is logged and does not fail the backup.
func (s *Service) Run(ctx context.Context) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, ErrInProgress
	}
	defer s.mu.Unlock()

	start := s.now()
	dir, err := os.MkdirTemp("", "bot-backup-*")
	if err != nil {
		return Result{}, fmt.Errorf("backup: temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	raw := filepath.Join(dir, "snapshot.db")
	if err := s.db.Snapshot(ctx, raw); err != nil {
		return Result{}, fmt.Errorf("backup: %w", err)
	}
	compressed := raw + ".zst"
	rawSize, compSize, err := compressFile(raw, compressed)
	if err != nil {
		return Result{}, fmt.Errorf("backup: %w", err)
	}

	f, err := os.Open(compressed)
	if err != nil {
		return Result{}, fmt.Errorf("backup: open compressed: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := s.key(start)
	if _, err := s.store.Upload(ctx, key, f, "application/zstd"); err != nil {
		return Result{}, fmt.Errorf("backup: %w", err)
	}

	res := Result{
		Key:             key,
		RawBytes:        rawSize,
		CompressedBytes: compSize,
	}
	if s.cfg.Keep > 0 {
		pruned, err := s.prune(ctx)
		if err != nil {
			s.logger.WithError(err).Warnf("Failed to prune old backups")
		}
		res.Pruned = pruned
	}
	res.Duration = s.now().Sub(start)

	s.logger.WithFields(map[string]any{
		"key":        res.Key,
		"raw":        res.RawBytes,
		"compressed": res.CompressedBytes,
		"pruned":     res.Pruned,
	}).Infof("Backup uploaded in %s", res.Duration.Round(time.Millisecond))
	return res, nil
}

// key sorts lexically by time: prefix/YYYY/MM/DD/HHMMSS-uuid.db.zst.
func (s *Service) key(at time.Time) string {
	return s.cfg.Prefix + at.UTC().Format("2006/01/02/150405") + "-" + uuid.NewString() + Suffix
}

func (s *Service) prune(ctx context.Context) (int, error) {
	objects, err := s.store.List(ctx, s.cfg.Prefix)
	if err != nil {
		return 0, err
	}
	objects = slices.DeleteFunc(objects, func(o r2client.Object) bool {
		return !strings.HasSuffix(o.Key, Suffix)
	})
	if len(objects) <= s.cfg.Keep {
		return 0, nil
	}
	slices.SortFunc(objects, func(a, b r2client.Object) int { return strings.Compare(b.Key, a.Key) })

	var (
		pruned int
		errs   []error
	)
	for _, o := range objects[s.cfg.Keep:] {
		if err := s.store.Delete(ctx, o.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		pruned++
	}
	return pruned, errors.Join(errs...)
}

// compressFile writes a zstd copy of src to dst and returns both sizes.
func compressFile(src, dst string) (int64, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, fmt.Errorf("compress: open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return 0, 0, fmt.Errorf("compress: create dest: %w", err)
	}
	defer func() { _ = out.Close() }()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, 0, fmt.Errorf("compress: create encoder: %w", err)
	}
	rawSize, err := io.Copy(enc, in)
	if err != nil {
		_ = enc.Close()
		return 0, 0, fmt.Errorf("compress: copy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, 0, fmt.Errorf("compress: close encoder: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("compress: stat: %w", err)
	}
	return rawSize, info.Size(), nil
}
