package formatter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
	"github.com/JakeFAU/booth-harvest/internal/storage/local"
)

// DefaultItemDelay separates consecutive records of one file.
const DefaultItemDelay = 4 * time.Second

// RecordFormatter formats one raw record.
type RecordFormatter interface {
	Format(ctx context.Context, record json.RawMessage) (*FormattedRecord, error)
}

// BatchConfig controls file processing.
type BatchConfig struct {
	// ItemDelay follows every array item; negative disables it.
	ItemDelay time.Duration
	// Workers bounds how many files are processed at once.
	Workers int
}

// Batch formats snapshot files into an output store.
type Batch struct {
	formatter RecordFormatter
	out       *local.BlobStore
	cfg       BatchConfig
	pauser    crawler.Pauser
	logger    *zap.Logger
}

// NewBatch builds a Batch writing into out. A nil pauser sleeps for real.
func NewBatch(f RecordFormatter, out *local.BlobStore, cfg BatchConfig, pauser crawler.Pauser, logger *zap.Logger) (*Batch, error) {
	if f == nil || out == nil {
		return nil, fmt.Errorf("formatter and output store are required")
	}
	if cfg.ItemDelay == 0 {
		cfg.ItemDelay = DefaultItemDelay
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{formatter: f, out: out, cfg: cfg, pauser: pauser, logger: logger}, nil
}

// ProcessPath formats a single file or every JSON file below a directory.
func (b *Batch) ProcessPath(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return b.ProcessDir(ctx, path)
	}
	return b.ProcessFile(ctx, path)
}

// ProcessDir formats every *.json file under dir, recursively, with up to
// Workers files in flight. Per-file failures are logged and count as zero.
func (b *Batch) ProcessDir(ctx context.Context, dir string) (int, error) {
	files, err := b.findJSON(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		b.logger.Warn("no JSON files found", zap.String("dir", dir))
		return 0, nil
	}
	b.logger.Info("formatting files", zap.Int("files", len(files)), zap.Int("workers", b.cfg.Workers))

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for _, file := range files {
		g.Go(func() error {
			n, err := b.processFile(gctx, file, outputName(dir, file))
			total.Add(int64(n))
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				b.logger.Error("file failed", zap.String("file", file), zap.Error(err))
				return nil
			}
			b.logger.Info("file done", zap.String("file", file), zap.Int("formatted", n))
			return nil
		})
	}
	err = g.Wait()
	return int(total.Load()), err
}

// ProcessFile formats one snapshot file into an output file of the same base
// name. Array items are appended to the output file as they succeed; a single
// object is written on its own.
func (b *Batch) ProcessFile(ctx context.Context, path string) (int, error) {
	return b.processFile(ctx, path, filepath.Base(path))
}

// outputName mirrors file's path below dir, so same-named files in different
// subdirectories keep separate outputs.
func outputName(dir, file string) string {
	rel, err := filepath.Rel(dir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(file)
	}
	return rel
}

func (b *Batch) processFile(ctx context.Context, path, name string) (int, error) {
	// #nosec G304 -- path is an operator-supplied input file.
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	logger := b.logger.With(zap.String("file", path))

	switch {
	case len(data) > 0 && data[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return 0, fmt.Errorf("decode %s: %w", path, err)
		}
		return b.processItems(ctx, name, items, logger)
	case len(data) > 0 && data[0] == '{':
		rec, err := b.formatter.Format(ctx, json.RawMessage(data))
		if err != nil {
			return 0, err
		}
		if rec == nil {
			return 0, nil
		}
		if _, err := b.out.WriteJSON(ctx, name, rec); err != nil {
			return 0, err
		}
		logger.Info("record formatted", zap.String("title", rec.Title))
		return 1, nil
	default:
		return 0, fmt.Errorf("%s: expected a JSON array or object", path)
	}
}

func (b *Batch) processItems(ctx context.Context, name string, items []json.RawMessage, logger *zap.Logger) (int, error) {
	count := 0
	for i, item := range items {
		rec, err := b.formatter.Format(ctx, item)
		switch {
		case err != nil && ctx.Err() != nil:
			return count, err
		case err != nil:
			logger.Warn("item skipped", zap.Int("index", i), zap.Error(err))
		case rec != nil:
			if _, err := b.out.AppendJSON(ctx, name, rec); err != nil {
				return count, err
			}
			count++
			logger.Info("record formatted", zap.Int("index", i), zap.String("title", rec.Title))
		}
		if err := b.pauser.Pause(ctx, b.cfg.ItemDelay); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (b *Batch) findJSON(dir string) ([]string, error) {
	outDir := filepath.Clean(b.out.BaseDir())
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			abs, absErr := filepath.Abs(path)
			if absErr == nil && filepath.Clean(abs) == outDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
