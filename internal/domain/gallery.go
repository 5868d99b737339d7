package domain

import (
	"time"
)

type Gallery struct {
	ID           string       `json:"id" bson:"_id"`
	Name         string       `json:"name" bson:"name"`
	CollectionID string       `json:"collection_id,omitempty" bson:"collectionId,omitempty"`
	Videos       []VideoEntry `json:"videos" bson:"videos"`
	CreatedAt    time.Time    `json:"created_at" bson:"createdAt"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updatedAt"`
}

// VideoEntry is immutable once appended to a gallery.
type VideoEntry struct {
	VideoID      string    `json:"videoId" bson:"videoId"`
	Title        string    `json:"title,omitempty" bson:"title,omitempty"`
	PlaybackURL  string    `json:"playbackUrl" bson:"playbackUrl"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty" bson:"thumbnailUrl,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt" bson:"uploadedAt"`
	CollectionID string    `json:"collectionId" bson:"collectionId"`
}

func NewGallery(id, name string) *Gallery {
	now := time.Now().UTC()
	return &Gallery{
		ID:        id,
		Name:      name,
		Videos:    []VideoEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (g *Gallery) HasCollection() bool {
	return g.CollectionID != ""
}

func (g *Gallery) HasVideo(videoID string) bool {
	for _, v := range g.Videos {
		if v.VideoID == videoID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share the Videos backing array.
func (g *Gallery) Clone() *Gallery {
	c := *g
	c.Videos = make([]VideoEntry, len(g.Videos))
	copy(c.Videos, g.Videos)
	return &c
}

func (g *Gallery) Validate() error {
	if g.ID == "" {
		return NewValidationError("gallery id is required")
	}
	if len(g.ID) > 128 {
		return NewValidationError("gallery id cannot exceed 128 characters")
	}
	if g.Name == "" {
		return NewValidationError("gallery name is required")
	}
	if len(g.Name) > 255 {
		return NewValidationError("gallery name cannot exceed 255 characters")
	}
	return nil
}
