package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// errStalled is the cancellation cause set by the stall watchdog.
var errStalled = errors.New("download stalled")

const progressLogInterval = 30 * time.Second

// progressReader wraps an upstream body to track download progress and
// detect stalls (no data for stallTimeout). A watchdog cancels the
// transfer context so a blocked Read is interrupted too.
type progressReader struct {
	reader       io.ReadCloser
	total        int64
	downloaded   int64
	stallTimeout time.Duration
	lastRead     time.Time
	lastLog      time.Time
	logger       *slog.Logger
	videoID      domain.VideoID
	mu           sync.Mutex
	closed       bool
	done         chan struct{}
}

func newProgressReader(r io.ReadCloser, total int64, stallTimeout time.Duration, logger *slog.Logger, videoID domain.VideoID) *progressReader {
	now := time.Now()
	return &progressReader{
		reader:       r,
		total:        total,
		stallTimeout: stallTimeout,
		lastRead:     now,
		lastLog:      now,
		logger:       logger,
		videoID:      videoID,
		done:         make(chan struct{}),
	}
}

// watch cancels the transfer with errStalled once no byte has arrived
// for stallTimeout. It returns when the reader is closed.
func (p *progressReader) watch(cancel context.CancelCauseFunc) {
	if p.stallTimeout <= 0 {
		return
	}
	interval := p.stallTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.mu.Lock()
				idle := time.Since(p.lastRead)
				p.mu.Unlock()
				if idle > p.stallTimeout {
					p.logger.Warn("download stalled",
						"video_id", p.videoID,
						"idle", idle.Round(time.Millisecond),
						"downloaded_bytes", p.Downloaded(),
					)
					cancel(errStalled)
					return
				}
			}
		}
	}()
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > 0 {
		p.downloaded += int64(n)
		p.lastRead = time.Now()

		if time.Since(p.lastLog) > progressLogInterval {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}

	return n, err
}

// Downloaded returns the number of bytes read so far.
func (p *progressReader) Downloaded() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloaded
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)

	if p.downloaded > 0 {
		p.logProgress()
	}
	p.mu.Unlock()

	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Info("download progress",
			"video_id", p.videoID,
			"downloaded_mb", p.downloaded/(1024*1024),
			"total_mb", p.total/(1024*1024),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("download progress",
			"video_id", p.videoID,
			"downloaded_mb", p.downloaded/(1024*1024),
		)
	}
}
