package mediahost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/orchids/video-gallery/internal/config"
	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/pkg/logger"
)

const (
	DefaultPlaybackBaseURL = "https://iframe.mediadelivery.net/play"

	maxErrorBodyBytes = 4096
)

// createdAtLayouts covers RFC3339 and the zone-less timestamps the host emits
// for older libraries.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

type Placeholder struct {
	VideoID      string
	CollectionID string
	UploadURL    string
}

type VideoMetadata struct {
	VideoID      string
	Title        string
	PlaybackURL  string
	ThumbnailURL string
	CreatedAt    *time.Time
	Status       int
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

type createCollectionResponse struct {
	GUID string `json:"guid"`
}

type createVideoRequest struct {
	Title string `json:"Title"`
}

type createVideoResponse struct {
	GUID         string `json:"guid"`
	CollectionID string `json:"collectionId"`
	UploadURL    string `json:"uploadUrl"`
}

type videoResponse struct {
	GUID              string `json:"guid"`
	Title             string `json:"title"`
	Status            int    `json:"status"`
	PlaybackURL       string `json:"playbackUrl"`
	Host              string `json:"host"`
	HostSign          string `json:"hostSign"`
	ThumbnailURL      string `json:"thumbnailUrl"`
	ThumbnailFileName string `json:"thumbnailFileName"`
	CreatedAt         string `json:"createdAt"`
	DateUploaded      string `json:"dateUploaded"`
}

// Client talks to the media host's REST API for one video library.
// Non-idempotent calls go through a client that never retries; reads and
// deletes use the retrying client.
type Client struct {
	baseURL         string
	libraryID       string
	apiKey          string
	playbackBaseURL string
	cdnHostname     string
	once            *retryablehttp.Client
	retrying        *retryablehttp.Client
	log             *logger.Logger
}

func NewClient(cfg *config.MediaHostConfig, log *logger.Logger) (*Client, error) {
	if cfg.LibraryID == "" || cfg.APIKey == "" {
		return nil, domain.NewConfigurationError("media host library id and api key are required")
	}
	if cfg.APIBaseURL == "" {
		return nil, domain.NewConfigurationError("media host API base URL is required")
	}

	playbackBase := cfg.PlaybackBaseURL
	if playbackBase == "" {
		playbackBase = DefaultPlaybackBaseURL
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.APIBaseURL, "/"),
		libraryID:       cfg.LibraryID,
		apiKey:          cfg.APIKey,
		playbackBaseURL: strings.TrimRight(playbackBase, "/"),
		cdnHostname:     cfg.CDNHostname,
		once:            newHTTPClient(cfg.RequestTimeout, 0, log),
		retrying:        newHTTPClient(cfg.RequestTimeout, cfg.MaxRetries, log),
		log:             log,
	}, nil
}

func newHTTPClient(timeout time.Duration, retryMax int, log *logger.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = log.Leveled("mediahost")
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return client
}

func (c *Client) LibraryID() string {
	return c.libraryID
}

// PlaybackURL derives the embed URL from the host's URL template. Used when
// the metadata response does not carry one.
func (c *Client) PlaybackURL(videoID string) string {
	return fmt.Sprintf("%s/%s/%s", c.playbackBaseURL, c.libraryID, videoID)
}

func (c *Client) CreateCollection(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.NewValidationError("collection name must be provided")
	}

	var resp createCollectionResponse
	if err := c.doJSON(ctx, c.once, "create collection", http.MethodPost, c.libraryPath("collections"), nil, createCollectionRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	if resp.GUID == "" {
		return "", &domain.RemoteServiceError{Op: "create collection", StatusCode: http.StatusOK, Body: "response did not contain a collection guid"}
	}

	c.log.Info(ctx, "media collection created", map[string]interface{}{
		"collection_id": resp.GUID,
		"name":          name,
	})

	return resp.GUID, nil
}

func (c *Client) CreateVideoPlaceholder(ctx context.Context, title, collectionID string) (*Placeholder, error) {
	if strings.TrimSpace(title) == "" {
		return nil, domain.NewValidationError("video title must be provided")
	}

	query := url.Values{}
	if collectionID != "" {
		query.Set("collectionId", collectionID)
	}

	var resp createVideoResponse
	if err := c.doJSON(ctx, c.once, "create video placeholder", http.MethodPost, c.libraryPath("videos"), query, createVideoRequest{Title: title}, &resp); err != nil {
		return nil, err
	}
	if resp.GUID == "" {
		return nil, &domain.RemoteServiceError{Op: "create video placeholder", StatusCode: http.StatusOK, Body: "response did not contain a video guid"}
	}

	c.log.Info(ctx, "video placeholder created", map[string]interface{}{
		"video_id":      resp.GUID,
		"collection_id": collectionID,
	})

	return &Placeholder{
		VideoID:      resp.GUID,
		CollectionID: collectionID,
		UploadURL:    resp.UploadURL,
	}, nil
}

func (c *Client) FetchMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	var resp videoResponse
	if err := c.doJSON(ctx, c.retrying, "fetch video metadata", http.MethodGet, c.libraryPath("videos", videoID), nil, nil, &resp); err != nil {
		return nil, err
	}

	meta := &VideoMetadata{
		VideoID:      videoID,
		Title:        resp.Title,
		PlaybackURL:  c.playbackFromResponse(videoID, &resp),
		ThumbnailURL: c.thumbnailFromResponse(videoID, &resp),
		Status:       resp.Status,
	}
	if created := parseCreatedAt(resp.CreatedAt, resp.DateUploaded); created != nil {
		meta.CreatedAt = created
	}

	return meta, nil
}

// UploadBinary PUTs the whole payload to a pre-signed URL in one request.
// The URL carries its own authorization, so no AccessKey is sent.
func (c *Client) UploadBinary(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	if uploadURL == "" {
		return domain.NewValidationError("upload URL must be provided")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, uploadURL, data)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.once.Do(req)
	if resp == nil {
		return &domain.RemoteServiceError{Op: "upload binary", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError("upload binary", resp)
	}

	c.log.Info(ctx, "video binary uploaded", map[string]interface{}{
		"bytes": len(data),
	})

	return nil
}

func (c *Client) DeleteVideo(ctx context.Context, videoID string) error {
	return c.delete(ctx, "delete video", c.libraryPath("videos", videoID))
}

func (c *Client) DeleteCollection(ctx context.Context, collectionID string) error {
	return c.delete(ctx, "delete collection", c.libraryPath("collections", collectionID))
}

func (c *Client) delete(ctx context.Context, op, endpoint string) error {
	err := c.doJSON(ctx, c.retrying, op, http.MethodDelete, endpoint, nil, nil, nil)
	var remoteErr *domain.RemoteServiceError
	if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) libraryPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/library/%s/%s", c.baseURL, url.PathEscape(c.libraryID), strings.Join(escaped, "/"))
}

func (c *Client) doJSON(
	ctx context.Context,
	client *retryablehttp.Client,
	op, method, endpoint string,
	query url.Values,
	body interface{},
	out interface{},
) error {
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	var payload interface{}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		payload = encoded
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("AccessKey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if resp == nil {
		return &domain.RemoteServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RemoteServiceError{Op: op, StatusCode: resp.StatusCode, Body: "malformed response body", Err: err}
	}
	return nil
}

func unwrapError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &domain.RemoteServiceError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
	}
}

func (c *Client) playbackFromResponse(videoID string, resp *videoResponse) string {
	if resp.PlaybackURL != "" {
		return resp.PlaybackURL
	}
	if resp.Host != "" {
		host := strings.TrimRight(resp.Host, "/")
		if !strings.Contains(host, "://") {
			host = "https://" + host
		}
		playback := fmt.Sprintf("%s/%s/playlist.m3u8", host, videoID)
		if resp.HostSign != "" {
			playback += "?" + strings.TrimPrefix(resp.HostSign, "?")
		}
		return playback
	}
	return c.PlaybackURL(videoID)
}

func (c *Client) thumbnailFromResponse(videoID string, resp *videoResponse) string {
	if resp.ThumbnailURL != "" {
		return resp.ThumbnailURL
	}
	if c.cdnHostname != "" && resp.ThumbnailFileName != "" {
		return fmt.Sprintf("https://%s/%s/%s", c.cdnHostname, videoID, resp.ThumbnailFileName)
	}
	return ""
}

func parseCreatedAt(values ...string) *time.Time {
	for _, value := range values {
		if value == "" {
			continue
		}
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				utc := t.UTC()
				return &utc
			}
		}
	}
	return nil
}
