// Package metadata fetches video details from the YouTube Data API.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
)

// maxLoggedBody bounds how much of an upstream error body is logged.
const maxLoggedBody = 512

// Fetcher retrieves metadata for a single video.
type Fetcher interface {
	Fetch(ctx context.Context, id domain.VideoID) (*domain.VideoMetadata, error)
}

// HTTPClient implements Fetcher against the Data API videos endpoint.
// Each Fetch issues exactly one request; there is no retry.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Data API client.
func NewClient(cfg config.YouTubeConfig, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Enabled reports whether an API credential is configured.
func (c *HTTPClient) Enabled() bool {
	return c.apiKey != ""
}

type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet *struct {
		Title        *string              `json:"title"`
		Description  string               `json:"description"`
		ChannelTitle string               `json:"channelTitle"`
		PublishedAt  string               `json:"publishedAt"`
		Thumbnails   map[string]thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails *struct {
		Duration *string `json:"duration"`
	} `json:"contentDetails"`
	Statistics *struct {
		ViewCount string `json:"viewCount"`
		LikeCount string `json:"likeCount"`
	} `json:"statistics"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// thumbnailPreference lists Data API thumbnail keys from best to worst.
var thumbnailPreference = []string{"maxres", "standard", "high", "medium", "default"}

// Fetch retrieves metadata for id. Upstream status and body are logged,
// never returned.
func (c *HTTPClient) Fetch(ctx context.Context, id domain.VideoID) (*domain.VideoMetadata, error) {
	if !id.Valid() {
		return nil, domain.ErrInvalidURL
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("id", id.String())
	q.Set("key", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("metadata request failed", "video_id", id, "error", redact(err.Error(), c.apiKey))
		return nil, domain.NewVideoError(id, "fetch metadata", domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.logger.Error("metadata response read failed", "video_id", id, "error", err)
		return nil, domain.NewVideoError(id, "fetch metadata", domain.ErrUpstreamUnavailable)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := string(respBody)
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody]
		}
		c.logger.Error("metadata API error",
			"video_id", id,
			"status", resp.StatusCode,
			"body", redact(body, c.apiKey),
		)
		return nil, domain.NewVideoError(id, "fetch metadata", domain.ErrUpstreamUnavailable)
	}

	var list videoListResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		c.logger.Error("metadata response not JSON", "video_id", id, "error", err)
		return nil, domain.NewVideoError(id, "fetch metadata", domain.ErrMalformedResponse)
	}

	if len(list.Items) == 0 {
		return nil, domain.NewVideoError(id, "fetch metadata", domain.ErrVideoNotFound)
	}

	meta, err := toMetadata(id, list.Items[0])
	if err != nil {
		c.logger.Error("metadata response incomplete", "video_id", id, "error", err)
		return nil, domain.NewVideoError(id, "fetch metadata", domain.Wrap(domain.ErrMalformedResponse, err))
	}
	return meta, nil
}

func toMetadata(id domain.VideoID, item videoItem) (*domain.VideoMetadata, error) {
	if item.Snippet == nil || item.Snippet.Title == nil {
		return nil, fmt.Errorf("missing snippet.title")
	}
	if item.ContentDetails == nil || item.ContentDetails.Duration == nil {
		return nil, fmt.Errorf("missing contentDetails.duration")
	}

	meta := &domain.VideoMetadata{
		VideoID:      id,
		Title:        *item.Snippet.Title,
		Description:  item.Snippet.Description,
		ChannelTitle: item.Snippet.ChannelTitle,
		Duration:     *item.ContentDetails.Duration,
	}

	for _, key := range thumbnailPreference {
		if th, ok := item.Snippet.Thumbnails[key]; ok && th.URL != "" {
			meta.ThumbnailURL = th.URL
			break
		}
	}

	if item.Snippet.PublishedAt != "" {
		published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("parse snippet.publishedAt: %w", err)
		}
		meta.PublishedAt = published
	}

	if item.Statistics != nil {
		if item.Statistics.ViewCount != "" {
			views, err := strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse statistics.viewCount: %w", err)
			}
			meta.ViewCount = views
		}
		// likeCount is omitted when the owner hides it.
		if item.Statistics.LikeCount != "" {
			likes, err := strconv.ParseInt(item.Statistics.LikeCount, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse statistics.likeCount: %w", err)
			}
			meta.LikeCount = &likes
		}
	}

	return meta, nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "REDACTED")
}
