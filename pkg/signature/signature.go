package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/orchids/video-gallery/internal/domain"
)

const DefaultTTL = time.Hour

const (
	HeaderSignature = "AuthorizationSignature"
	HeaderExpire    = "AuthorizationExpire"
	HeaderVideoID   = "VideoId"
	HeaderLibraryID = "LibraryId"
)

type UploadSignature struct {
	LibraryID string
	VideoID   string
	Expire    int64
	Value     string
}

// Sign computes the tus upload signature the media host expects:
// hex(sha256(libraryID + apiKey + expire + videoID)) with expire in base-10
// unix seconds. Field order and formatting must not change. A partial
// second of ttl rounds up so a positive ttl never signs an expired upload.
func Sign(libraryID, apiKey, videoID string, ttl time.Duration, now time.Time) UploadSignature {
	expire := now.Unix() + int64((ttl+time.Second-1)/time.Second)

	h := sha256.New()
	h.Write([]byte(libraryID))
	h.Write([]byte(apiKey))
	h.Write([]byte(strconv.FormatInt(expire, 10)))
	h.Write([]byte(videoID))

	return UploadSignature{
		LibraryID: libraryID,
		VideoID:   videoID,
		Expire:    expire,
		Value:     hex.EncodeToString(h.Sum(nil)),
	}
}

func (s UploadSignature) ExpiresAt() time.Time {
	return time.Unix(s.Expire, 0)
}

func (s UploadSignature) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

func (s UploadSignature) Headers() map[string]string {
	return map[string]string{
		HeaderSignature: s.Value,
		HeaderExpire:    strconv.FormatInt(s.Expire, 10),
		HeaderVideoID:   s.VideoID,
		HeaderLibraryID: s.LibraryID,
	}
}

type Signer struct {
	libraryID string
	apiKey    string
	ttl       time.Duration
	now       func() time.Time
}

func NewSigner(libraryID, apiKey string, ttl time.Duration) (*Signer, error) {
	if libraryID == "" || apiKey == "" {
		return nil, domain.NewConfigurationError("media host library id and api key are required for signing")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		libraryID: libraryID,
		apiKey:    apiKey,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// WithClock replaces the time source, for tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

func (s *Signer) Sign(videoID string) UploadSignature {
	return Sign(s.libraryID, s.apiKey, videoID, s.ttl, s.now())
}
