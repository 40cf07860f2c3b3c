package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/stream"
)

const testMaxBody = 1 << 10

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) *repository.FilesystemArtifactRepository {
	t.Helper()
	repo, err := repository.NewFilesystemArtifactRepository(config.StorageConfig{
		DownloadPath: filepath.Join(t.TempDir(), "downloads"),
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

func postJSON(t *testing.T, h http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	decodeBody(t, w, &resp)
	return resp["error"]
}

func sampleListing() *stream.Listing {
	return &stream.Listing{
		Reference: domain.VideoReference{SourceURL: "https://youtu.be/dQw4w9WgXcQ", VideoID: "dQw4w9WgXcQ"},
		Title:     "Sample Video",
		Formats: []domain.StreamDescriptor{
			{FormatID: "18", Container: "mp4", ResolutionLabel: "360p", HasAudio: true, HasVideo: true},
			{FormatID: "140", Container: "m4a", HasAudio: true},
		},
	}
}

// fakeVideoService is a test implementation of VideoService.
type fakeVideoService struct {
	info        *service.VideoInfo
	infoErr     error
	formatsErr  error
	result      *service.DownloadResult
	downloadErr error

	streamBody string
	streamSize int64
	streamErr  error
	// failAfterBegin makes Stream send headers before returning streamErr.
	failAfterBegin bool

	lastReq service.DownloadRequest
}

func (f *fakeVideoService) Info(ctx context.Context, rawURL string) (*service.VideoInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeVideoService) Formats(ctx context.Context, rawURL string) (*stream.Listing, error) {
	if f.formatsErr != nil {
		return nil, f.formatsErr
	}
	return sampleListing(), nil
}

func (f *fakeVideoService) Download(ctx context.Context, req service.DownloadRequest) (*service.DownloadResult, error) {
	f.lastReq = req
	return f.result, f.downloadErr
}

func (f *fakeVideoService) Stream(ctx context.Context, req service.DownloadRequest, target downloader.StreamTarget) (*downloader.StreamResult, error) {
	f.lastReq = req
	if f.streamErr != nil && !f.failAfterBegin {
		return nil, f.streamErr
	}

	size := f.streamSize
	if size == 0 {
		size = int64(len(f.streamBody))
	}
	if err := target.Begin("Sample Video_720p.mp4", "video/mp4", size); err != nil {
		return nil, err
	}
	n, _ := io.WriteString(target, f.streamBody)
	if fl, ok := target.(interface{ Flush() }); ok {
		fl.Flush()
	}
	return &downloader.StreamResult{Filename: "Sample Video_720p.mp4", BytesSent: int64(n)}, f.streamErr
}

// fakeConverter records which conversion path was taken.
type fakeConverter struct {
	repo     *repository.FilesystemArtifactRepository
	err      error
	called   string
	argument string
}

func (f *fakeConverter) FromArtifact(ctx context.Context, filename string) (*domain.Artifact, error) {
	f.called, f.argument = "artifact", filename
	return f.produce(filename[:len(filename)-len(filepath.Ext(filename))] + ".mp3")
}

func (f *fakeConverter) FromSource(ctx context.Context, rawURL string) (*domain.Artifact, error) {
	f.called, f.argument = "source", rawURL
	return f.produce("Sample Video.mp3")
}

func (f *fakeConverter) produce(name string) (*domain.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	content := []byte("ID3 fake mp3 payload")
	if err := os.WriteFile(filepath.Join(f.repo.Root(), name), content, 0644); err != nil {
		return nil, err
	}
	return &domain.Artifact{
		Filename:  name,
		SizeBytes: int64(len(content)),
		Kind:      domain.KindAudio,
		ModTime:   time.Now(),
	}, nil
}
