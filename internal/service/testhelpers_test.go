package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/stream"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) *repository.FilesystemArtifactRepository {
	t.Helper()
	repo, err := repository.NewFilesystemArtifactRepository(config.StorageConfig{
		DownloadPath: t.TempDir(),
	}, testLogger())
	if err != nil {
		t.Fatalf("NewFilesystemArtifactRepository: %v", err)
	}
	return repo
}

func writeFixture(t *testing.T, repo *repository.FilesystemArtifactRepository, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(repo.Root(), name), []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

// managedFiles lists every entry of the managed directory, hidden ones included.
func managedFiles(t *testing.T, repo *repository.FilesystemArtifactRepository) []string {
	t.Helper()
	entries, err := os.ReadDir(repo.Root())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// fakeResolver serves a fixed listing.
type fakeResolver struct {
	listing    *stream.Listing
	resolveErr error
	openErr    error
	body       io.Reader

	lastSel stream.Selector
}

func (f *fakeResolver) ListFormats(ctx context.Context, ref domain.VideoReference) (*stream.Listing, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	l := *f.listing
	l.Reference = ref
	return &l, nil
}

func (f *fakeResolver) Resolve(ctx context.Context, ref domain.VideoReference, sel stream.Selector) (*stream.Listing, domain.StreamDescriptor, error) {
	f.lastSel = sel
	listing, err := f.ListFormats(ctx, ref)
	if err != nil {
		return nil, domain.StreamDescriptor{}, err
	}
	desc, err := stream.Select(listing.Formats, sel)
	if err != nil {
		return nil, domain.StreamDescriptor{}, domain.NewVideoError(ref.VideoID, "select format", err)
	}
	return listing, desc, nil
}

func (f *fakeResolver) Open(ctx context.Context, listing *stream.Listing, desc domain.StreamDescriptor) (io.ReadCloser, int64, error) {
	if f.openErr != nil {
		return nil, 0, f.openErr
	}
	return io.NopCloser(f.body), -1, nil
}

func sampleListing() *stream.Listing {
	return &stream.Listing{
		Title:  "Sample Video",
		Author: "Sample Channel",
		Formats: []domain.StreamDescriptor{
			{FormatID: "18", Container: "mp4", ResolutionLabel: "360p", Bitrate: 500, HasVideo: true, HasAudio: true},
			{FormatID: "140", Container: "m4a", Bitrate: 128, HasAudio: true},
			{FormatID: "251", Container: "webm", Bitrate: 160, HasAudio: true},
		},
	}
}
