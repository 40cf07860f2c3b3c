package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
)

const partSuffix = ".part"

// FilesystemArtifactRepository implements ArtifactRepository on a single
// flat directory. Complete artifacts only ever appear through an atomic
// rename, so a reader never observes a truncated file under its final name.
type FilesystemArtifactRepository struct {
	root        string
	maxFileSize int64
	logger      *slog.Logger

	mu      sync.Mutex
	writing map[string]int
}

// NewFilesystemArtifactRepository creates the managed directory if needed
// and returns a repository rooted at its canonical absolute path.
func NewFilesystemArtifactRepository(cfg config.StorageConfig, logger *slog.Logger) (*FilesystemArtifactRepository, error) {
	abs, err := filepath.Abs(cfg.DownloadPath)
	if err != nil {
		return nil, fmt.Errorf("resolve download path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve download directory: %w", err)
	}

	return &FilesystemArtifactRepository{
		root:        root,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger,
		writing:     make(map[string]int),
	}, nil
}

// Root returns the absolute path of the managed directory.
func (r *FilesystemArtifactRepository) Root() string {
	return r.root
}

// Resolve validates a client-supplied filename. Only plain names of direct
// children are accepted: no separators, no parent references, no absolute
// or volume paths, no hidden files and no symlinks pointing elsewhere.
func (r *FilesystemArtifactRepository) Resolve(name string) (string, error) {
	if name == "" || strings.TrimSpace(name) != name {
		return "", domain.ErrInvalidPath
	}
	if strings.ContainsRune(name, 0) || strings.ContainsAny(name, `/\`) {
		return "", domain.ErrInvalidPath
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", domain.ErrInvalidPath
	}
	if strings.HasPrefix(name, ".") {
		return "", domain.ErrInvalidPath
	}

	candidate := filepath.Join(r.root, name)
	if filepath.Dir(candidate) != r.root {
		return "", domain.ErrInvalidPath
	}

	info, err := os.Lstat(candidate)
	if err == nil && info.Mode()&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(candidate)
		if err != nil || filepath.Dir(target) != r.root {
			return "", domain.ErrInvalidPath
		}
	}

	return candidate, nil
}

// Exists reports whether a complete artifact with this name is present.
func (r *FilesystemArtifactRepository) Exists(name string) bool {
	_, err := r.Stat(name)
	return err == nil
}

// State reports where name currently sits in the artifact lifecycle.
func (r *FilesystemArtifactRepository) State(name string) domain.ArtifactState {
	r.mu.Lock()
	inFlight := r.writing[name] > 0
	r.mu.Unlock()

	if r.Exists(name) {
		return domain.StateComplete
	}
	if inFlight {
		return domain.StateWriting
	}
	return domain.StateAbsent
}

// Stat returns artifact details without opening it.
func (r *FilesystemArtifactRepository) Stat(name string) (*domain.Artifact, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, domain.Wrap(domain.ErrDiskError, err)
	}
	if !info.Mode().IsRegular() {
		return nil, domain.ErrArtifactNotFound
	}

	return newArtifact(name, path, info), nil
}

// Open returns a reader over a complete artifact. Once Open succeeds the
// caller holds the file descriptor, so a concurrent Delete does not cut the
// read short. A Delete that wins the race yields ErrArtifactNotFound.
func (r *FilesystemArtifactRepository) Open(ctx context.Context, name string) (ArtifactReader, *domain.Artifact, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.ErrArtifactNotFound
		}
		return nil, nil, domain.Wrap(domain.ErrDiskError, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, domain.Wrap(domain.ErrDiskError, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, domain.ErrArtifactNotFound
	}

	return f, newArtifact(name, path, info), nil
}

// Create starts writing a new artifact under a hidden temporary name in the
// managed directory.
func (r *FilesystemArtifactRepository) Create(name string) (*ArtifactWriter, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	// The temp name only has to be hidden and unique; cap it so a final name
	// near the filesystem limit still leaves room for the decoration.
	tempName := "." + truncateBytes(name, maxNameBytes) + "." + uuid.New().String()[:8] + partSuffix
	tempPath := filepath.Join(r.root, tempName)
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, domain.Wrap(domain.ErrDiskError, err)
	}

	r.mu.Lock()
	r.writing[name]++
	r.mu.Unlock()

	return &ArtifactWriter{
		repo:     r,
		name:     name,
		path:     path,
		tempPath: tempPath,
		file:     f,
		maxSize:  r.maxFileSize,
	}, nil
}

func (r *FilesystemArtifactRepository) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writing[name]--
	if r.writing[name] <= 0 {
		delete(r.writing, name)
	}
}

// Delete removes a complete artifact.
func (r *FilesystemArtifactRepository) Delete(ctx context.Context, name string) error {
	path, err := r.Resolve(name)
	if err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrArtifactNotFound
		}
		return domain.Wrap(domain.ErrDiskError, err)
	}
	if info.IsDir() {
		return domain.ErrArtifactNotFound
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrArtifactNotFound
		}
		return domain.Wrap(domain.ErrDiskError, err)
	}

	r.logger.Info("artifact deleted", "filename", name)
	return nil
}

// List returns all complete artifacts, newest first.
func (r *FilesystemArtifactRepository) List(ctx context.Context) ([]domain.Artifact, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, domain.Wrap(domain.ErrDiskError, err)
	}

	result := make([]domain.Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		result = append(result, *newArtifact(e.Name(), filepath.Join(r.root, e.Name()), info))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ModTime.Equal(result[j].ModTime) {
			return result[i].Filename < result[j].Filename
		}
		return result[i].ModTime.After(result[j].ModTime)
	})

	return result, nil
}

// Sweep removes complete artifacts and abandoned partial files whose
// modification time is older than maxAge.
func (r *FilesystemArtifactRepository) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return 0, domain.Wrap(domain.ErrDiskError, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") && !strings.HasSuffix(name, partSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.root, name)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("failed to remove expired artifact", "filename", name, "error", err)
			}
			continue
		}
		removed++
		r.logger.Debug("expired artifact removed", "filename", name, "modified_at", info.ModTime())
	}

	return removed, nil
}

// FreeBytes reports the space available to the managed directory.
func (r *FilesystemArtifactRepository) FreeBytes() int64 {
	return getFreeDiskSpace(r.root)
}

// DiskUsage reports the total, free and used bytes of the managed
// directory's filesystem.
func (r *FilesystemArtifactRepository) DiskUsage() (total, free, used int64) {
	return getDiskUsage(r.root)
}

func newArtifact(name, path string, info fs.FileInfo) *domain.Artifact {
	return &domain.Artifact{
		Filename:  name,
		Path:      path,
		SizeBytes: info.Size(),
		Kind:      domain.KindFromFilename(name),
		ModTime:   info.ModTime(),
	}
}
