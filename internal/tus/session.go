package tus

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/pkg/logger"
)

const (
	ProtocolVersion = "1.0.0"

	DefaultChunkSize = 5 * 1024 * 1024

	offsetContentType = "application/offset+octet-stream"
)

// DefaultRetryDelays is the bounded backoff schedule between attempts. An
// upload gets one initial attempt plus one retry per entry.
var DefaultRetryDelays = []time.Duration{0, 3 * time.Second, 5 * time.Second, 10 * time.Second}

type State string

const (
	StateInit             State = "init"
	StateCheckingPrevious State = "checking_previous"
	StateUploading        State = "uploading"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

type ProgressFunc func(uploaded, total int64)

type Request struct {
	Fingerprint string
	Endpoint    string
	Data        []byte
	Headers     map[string]string
	Metadata    map[string]string
	// Deadline is when the upload signature stops being accepted. Zero means
	// no deadline.
	Deadline   time.Time
	OnProgress ProgressFunc
}

type Result struct {
	UploadURL   string
	Size        int64
	Attempts    int
	ResumedFrom int64
}

type Config struct {
	ChunkSize    int64
	RetryDelays  []time.Duration
	ChunkTimeout time.Duration
}

// Uploader creates resumable upload sessions that share an HTTP client and a
// checkpoint store.
type Uploader struct {
	config Config
	client *retryablehttp.Client
	store  CheckpointStore
	log    *logger.Logger
	now    func() time.Time
}

func NewUploader(cfg Config, store CheckpointStore, log *logger.Logger) *Uploader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if store == nil {
		store = NewMemoryCheckpointStore()
	}

	// Retries belong to the session loop, which re-checks the offset first.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = log.Leveled("tus")

	return &Uploader{
		config: cfg,
		client: client,
		store:  store,
		log:    log,
		now:    time.Now,
	}
}

func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	session, err := u.NewSession(req)
	if err != nil {
		return nil, err
	}
	return session.Run(ctx)
}

func (u *Uploader) NewSession(req Request) (*Session, error) {
	if req.Fingerprint == "" {
		return nil, domain.NewValidationError("upload fingerprint is required")
	}
	if req.Endpoint == "" {
		return nil, domain.NewConfigurationError("resumable upload endpoint is not configured")
	}
	if _, err := url.Parse(req.Endpoint); err != nil {
		return nil, domain.NewConfigurationError("invalid resumable upload endpoint: %v", err)
	}

	return &Session{
		uploader: u,
		req:      req,
		size:     int64(len(req.Data)),
		state:    StateInit,
	}, nil
}

// Session is a single resumable upload. It is not safe to Run concurrently;
// the accessors may be called from other goroutines.
type Session struct {
	uploader *Uploader
	req      Request
	size     int64

	mu          sync.Mutex
	state       State
	uploadURL   string
	offset      int64
	reported    int64
	attempts    int
	resumedFrom int64
	lastErr     error
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Run(ctx context.Context) (*Result, error) {
	if state := s.State(); state.Terminal() {
		return nil, fmt.Errorf("upload session already %s", state)
	}

	log := s.uploader.log
	delays := s.uploader.config.RetryDelays
	retries := 0

	for {
		s.mu.Lock()
		s.attempts++
		s.mu.Unlock()

		err := s.attempt(ctx)
		if err == nil {
			return s.succeed(ctx), nil
		}

		cause, retry := s.classify(ctx, err)
		if !retry || retries >= len(delays) {
			return nil, s.fail(ctx, cause)
		}

		delay := delays[retries]
		retries++

		log.Warn(ctx, "resumable upload attempt failed, retrying", map[string]interface{}{
			"fingerprint": s.req.Fingerprint,
			"offset":      s.Offset(),
			"retry":       retries,
			"delay_ms":    delay.Milliseconds(),
			"error":       err.Error(),
		})

		if err := s.wait(ctx, delay); err != nil {
			return nil, s.fail(ctx, err)
		}
	}
}

func (s *Session) attempt(ctx context.Context) error {
	s.setState(StateCheckingPrevious)

	offset, err := s.resolveOffset(ctx)
	if err != nil {
		return err
	}

	s.setState(StateUploading)
	s.setOffset(offset)
	s.report(offset)

	chunkSize := s.uploader.config.ChunkSize
	for offset < s.size {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.expired() {
			return domain.ErrExpiredSignature
		}

		end := offset + chunkSize
		if end > s.size {
			end = s.size
		}

		next, err := s.patch(ctx, offset, s.req.Data[offset:end])
		if err != nil {
			return err
		}

		offset = next
		s.setOffset(offset)
		s.saveCheckpoint(ctx, offset)
		s.report(offset)
	}

	return nil
}

// resolveOffset is the checking-previous step: reuse the upload URL from this
// session or from a stored checkpoint when the host still knows it, otherwise
// create a new upload.
func (s *Session) resolveOffset(ctx context.Context) (int64, error) {
	store := s.uploader.store
	log := s.uploader.log

	if s.currentURL() == "" {
		cp, err := store.Load(ctx, s.req.Fingerprint)
		if err != nil {
			log.Warn(ctx, "failed to load upload checkpoint", map[string]interface{}{
				"fingerprint": s.req.Fingerprint,
				"error":       err.Error(),
			})
		}
		if cp != nil && cp.UploadURL != "" && cp.Size == s.size {
			s.setURL(cp.UploadURL)
		} else if cp != nil {
			s.deleteCheckpoint(ctx)
		}
	}

	if uploadURL := s.currentURL(); uploadURL != "" {
		offset, err := s.head(ctx, uploadURL)
		if err == nil && offset <= s.size {
			if offset > 0 {
				s.mu.Lock()
				if s.resumedFrom == 0 {
					s.resumedFrom = offset
				}
				s.mu.Unlock()
			}
			log.Debug(ctx, "resuming previous upload", map[string]interface{}{
				"fingerprint": s.req.Fingerprint,
				"offset":      offset,
				"size":        s.size,
			})
			return offset, nil
		}
		if err != nil && !isGone(err) {
			return 0, err
		}

		log.Info(ctx, "previous upload is no longer usable, starting over", map[string]interface{}{
			"fingerprint": s.req.Fingerprint,
			"upload_url":  uploadURL,
		})
		s.setURL("")
		s.deleteCheckpoint(ctx)
	}

	uploadURL, err := s.create(ctx)
	if err != nil {
		return 0, err
	}
	s.setURL(uploadURL)
	s.saveCheckpoint(ctx, 0)

	return 0, nil
}

func (s *Session) create(ctx context.Context) (string, error) {
	resp, err := s.do(ctx, http.MethodPost, s.req.Endpoint, nil, map[string]string{
		"Upload-Length":   strconv.FormatInt(s.size, 10),
		"Upload-Metadata": encodeMetadata(s.req.Metadata),
	})
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", newStatusError("create upload", resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("create upload: response has no Location header")
	}

	base, err := url.Parse(s.req.Endpoint)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	resolved, err := base.Parse(location)
	if err != nil {
		return "", fmt.Errorf("create upload: invalid Location %q: %w", location, err)
	}

	return resolved.String(), nil
}

func (s *Session) head(ctx context.Context, uploadURL string) (int64, error) {
	resp, err := s.do(ctx, http.MethodHead, uploadURL, nil, nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return 0, newStatusError("check upload offset", resp)
	}

	return parseOffset(resp)
}

func (s *Session) patch(ctx context.Context, offset int64, chunk []byte) (int64, error) {
	resp, err := s.do(ctx, http.MethodPatch, s.currentURL(), chunk, map[string]string{
		"Upload-Offset": strconv.FormatInt(offset, 10),
		"Content-Type":  offsetContentType,
	})
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return 0, newStatusError("upload chunk", resp)
	}

	next, err := parseOffset(resp)
	if err != nil {
		return 0, err
	}
	if next <= offset || next > s.size {
		return 0, &offsetMismatchError{sent: offset, acknowledged: next}
	}

	return next, nil
}

func (s *Session) do(ctx context.Context, method, target string, body []byte, extra map[string]string) (*http.Response, error) {
	if s.expired() {
		return nil, domain.ErrExpiredSignature
	}

	reqCtx, cancel := s.requestContext(ctx)

	var payload interface{}
	if body != nil {
		payload = body
	}

	req, err := retryablehttp.NewRequestWithContext(reqCtx, method, target, payload)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Tus-Resumable", ProtocolVersion)
	for k, v := range s.req.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}

	// The passthrough error handler may hand back a response alongside an
	// error; the status code is what decides the outcome then.
	resp, err := s.uploader.client.Do(req)
	if resp == nil {
		cancel()
		if err == nil {
			err = fmt.Errorf("%s %s: no response", method, target)
		}
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancelDeadline := ctx, context.CancelFunc(func() {})
	if !s.req.Deadline.IsZero() {
		reqCtx, cancelDeadline = context.WithDeadline(ctx, s.req.Deadline)
	}

	timeout := s.uploader.config.ChunkTimeout
	if timeout <= 0 {
		return reqCtx, cancelDeadline
	}

	reqCtx, cancelTimeout := context.WithTimeout(reqCtx, timeout)
	return reqCtx, func() {
		cancelTimeout()
		cancelDeadline()
	}
}

// classify decides whether a failed attempt may be retried and what the
// terminal cause is when it may not.
func (s *Session) classify(ctx context.Context, err error) (error, bool) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr, false
	}
	if errors.Is(err, domain.ErrExpiredSignature) || s.expired() {
		if errors.Is(err, domain.ErrExpiredSignature) {
			return err, false
		}
		return fmt.Errorf("%w: %v", domain.ErrExpiredSignature, err), false
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return err, statusErr.retryable()
	}

	var mismatch *offsetMismatchError
	if errors.As(err, &mismatch) {
		return err, true
	}

	var parseErr *malformedOffsetError
	if errors.As(err, &parseErr) {
		return err, false
	}

	// Transport-level failures: connection resets, per-chunk timeouts.
	return err, true
}

func (s *Session) wait(ctx context.Context, delay time.Duration) error {
	if !s.req.Deadline.IsZero() && !s.uploader.now().Add(delay).Before(s.req.Deadline) {
		return fmt.Errorf("%w: retry delay of %s would outlive the signature", domain.ErrExpiredSignature, delay)
	}
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Session) succeed(ctx context.Context) *Result {
	s.mu.Lock()
	s.state = StateSucceeded
	s.lastErr = nil
	result := &Result{
		UploadURL:   s.uploadURL,
		Size:        s.size,
		Attempts:    s.attempts,
		ResumedFrom: s.resumedFrom,
	}
	s.mu.Unlock()

	s.deleteCheckpoint(ctx)

	s.uploader.log.Info(ctx, "resumable upload complete", map[string]interface{}{
		"fingerprint":  s.req.Fingerprint,
		"size":         s.size,
		"attempts":     result.Attempts,
		"resumed_from": result.ResumedFrom,
	})

	return result
}

// fail moves the session to its terminal failed state. The checkpoint is
// kept so a later session with the same fingerprint can resume.
func (s *Session) fail(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = cause
	transferErr := &domain.TransferError{
		Fingerprint: s.req.Fingerprint,
		Offset:      s.offset,
		Size:        s.size,
		Attempts:    s.attempts,
		Err:         cause,
	}
	s.mu.Unlock()

	s.uploader.log.Error(ctx, "resumable upload failed", cause, map[string]interface{}{
		"fingerprint": s.req.Fingerprint,
		"offset":      transferErr.Offset,
		"size":        s.size,
		"attempts":    transferErr.Attempts,
	})

	return transferErr
}

func (s *Session) expired() bool {
	return !s.req.Deadline.IsZero() && !s.uploader.now().Before(s.req.Deadline)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setOffset(offset int64) {
	s.mu.Lock()
	s.offset = offset
	s.mu.Unlock()
}

func (s *Session) setURL(uploadURL string) {
	s.mu.Lock()
	s.uploadURL = uploadURL
	s.mu.Unlock()
}

func (s *Session) currentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadURL
}

// report forwards progress without ever going backwards.
func (s *Session) report(offset int64) {
	s.mu.Lock()
	if offset < s.reported {
		s.mu.Unlock()
		return
	}
	s.reported = offset
	callback := s.req.OnProgress
	s.mu.Unlock()

	if callback != nil {
		callback(offset, s.size)
	}
}

func (s *Session) saveCheckpoint(ctx context.Context, offset int64) {
	err := s.uploader.store.Save(ctx, &Checkpoint{
		Fingerprint: s.req.Fingerprint,
		UploadURL:   s.currentURL(),
		Offset:      offset,
		Size:        s.size,
		UpdatedAt:   s.uploader.now().UTC(),
	})
	if err != nil {
		s.uploader.log.Warn(ctx, "failed to save upload checkpoint", map[string]interface{}{
			"fingerprint": s.req.Fingerprint,
			"error":       err.Error(),
		})
	}
}

func (s *Session) deleteCheckpoint(ctx context.Context) {
	if err := s.uploader.store.Delete(context.WithoutCancel(ctx), s.req.Fingerprint); err != nil {
		s.uploader.log.Warn(ctx, "failed to delete upload checkpoint", map[string]interface{}{
			"fingerprint": s.req.Fingerprint,
			"error":       err.Error(),
		})
	}
}

type statusError struct {
	op         string
	statusCode int
	body       string
}

func newStatusError(op string, resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &statusError{
		op:         op,
		statusCode: resp.StatusCode,
		body:       strings.TrimSpace(string(body)),
	}
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected HTTP %d: %s", e.op, e.statusCode, e.body)
}

func (e *statusError) retryable() bool {
	switch e.statusCode {
	case http.StatusConflict, http.StatusLocked, http.StatusTooManyRequests:
		return true
	}
	return e.statusCode >= 500
}

type offsetMismatchError struct {
	sent         int64
	acknowledged int64
}

func (e *offsetMismatchError) Error() string {
	return fmt.Sprintf("server acknowledged offset %d after chunk sent at %d", e.acknowledged, e.sent)
}

type malformedOffsetError struct {
	value string
}

func (e *malformedOffsetError) Error() string {
	return fmt.Sprintf("malformed Upload-Offset header %q", e.value)
}

// isGone reports whether a stored upload URL should be abandoned in favour
// of a fresh upload.
func isGone(err error) bool {
	var statusErr *statusError
	if !errors.As(err, &statusErr) {
		return false
	}
	code := statusErr.statusCode
	return code >= 400 && code < 500 && !statusErr.retryable()
}

func parseOffset(resp *http.Response) (int64, error) {
	value := resp.Header.Get("Upload-Offset")
	offset, err := strconv.ParseInt(value, 10, 64)
	if err != nil || offset < 0 {
		return 0, &malformedOffsetError{value: value}
	}
	return offset, nil
}

// encodeMetadata renders the Upload-Metadata header: comma separated
// "key base64(value)" pairs, sorted by key.
func encodeMetadata(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+" "+base64.StdEncoding.EncodeToString([]byte(metadata[k])))
	}
	return strings.Join(pairs, ",")
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
