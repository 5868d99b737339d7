package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/orchids/video-gallery/internal/domain"
)

const galleryCollection = "galleries"

type MongoGalleryRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoGalleryRepository(db *mongo.Database) *MongoGalleryRepository {
	return &MongoGalleryRepository{
		coll: db.Collection(galleryCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes backs the list ordering and the reaper's reference lookups.
// _id is unique already.
func (r *MongoGalleryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "collectionId", Value: 1}}},
		{Keys: bson.D{{Key: "videos.videoId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to ensure gallery indexes: %w", err)
	}
	return nil
}

func (r *MongoGalleryRepository) FindOrCreate(ctx context.Context, id, defaultName string) (*domain.Gallery, error) {
	gallery, err := r.GetByID(ctx, id)
	if err == nil {
		return gallery, nil
	}
	if !errors.Is(err, domain.ErrGalleryNotFound) {
		return nil, err
	}

	gallery = domain.NewGallery(id, defaultName)
	err = r.Create(ctx, gallery)
	if errors.Is(err, domain.ErrGalleryExists) {
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	return gallery, nil
}

func (r *MongoGalleryRepository) BindCollection(ctx context.Context, id, collectionID string) (*domain.Gallery, error) {
	filter := bson.M{
		"_id":          id,
		"collectionId": bson.M{"$exists": false},
	}
	update := bson.M{
		"$set": bson.M{
			"collectionId": collectionID,
			"updatedAt":    r.now(),
		},
	}

	gallery, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind collection: %w", err)
	}

	return gallery, nil
}

func (r *MongoGalleryRepository) AppendVideo(ctx context.Context, id string, entry domain.VideoEntry) (*domain.Gallery, error) {
	update := bson.M{
		"$push": bson.M{"videos": entry},
		"$set":  bson.M{"updatedAt": r.now()},
	}

	gallery, err := r.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrGalleryNotFound
		}
		return nil, fmt.Errorf("failed to append video: %w", err)
	}

	return gallery, nil
}

func (r *MongoGalleryRepository) Create(ctx context.Context, gallery *domain.Gallery) error {
	if err := gallery.Validate(); err != nil {
		return err
	}

	doc := gallery.Clone()
	if doc.Videos == nil {
		doc.Videos = []domain.VideoEntry{}
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrGalleryExists
		}
		return fmt.Errorf("failed to create gallery: %w", err)
	}

	return nil
}

func (r *MongoGalleryRepository) GetByID(ctx context.Context, id string) (*domain.Gallery, error) {
	var gallery domain.Gallery
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&gallery); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrGalleryNotFound
		}
		return nil, fmt.Errorf("failed to get gallery: %w", err)
	}

	return normalize(&gallery), nil
}

func (r *MongoGalleryRepository) List(ctx context.Context, limit, offset int) ([]*domain.Gallery, int64, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count galleries: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list galleries: %w", err)
	}
	defer cursor.Close(ctx)

	galleries := []*domain.Gallery{}
	for cursor.Next(ctx) {
		var gallery domain.Gallery
		if err := cursor.Decode(&gallery); err != nil {
			return nil, 0, fmt.Errorf("failed to decode gallery: %w", err)
		}
		galleries = append(galleries, normalize(&gallery))
	}

	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating galleries: %w", err)
	}

	return galleries, total, nil
}

func (r *MongoGalleryRepository) IsVideoReferenced(ctx context.Context, videoID string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"videos.videoId": videoID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check video reference: %w", err)
	}
	return count > 0, nil
}

func (r *MongoGalleryRepository) IsCollectionBound(ctx context.Context, collectionID string) (bool, error) {
	if collectionID == "" {
		return false, nil
	}

	count, err := r.coll.CountDocuments(ctx, bson.M{"collectionId": collectionID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check collection binding: %w", err)
	}
	return count > 0, nil
}

func (r *MongoGalleryRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

func (r *MongoGalleryRepository) findOneAndUpdate(ctx context.Context, filter, update interface{}) (*domain.Gallery, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var gallery domain.Gallery
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&gallery); err != nil {
		return nil, err
	}
	return normalize(&gallery), nil
}

func normalize(g *domain.Gallery) *domain.Gallery {
	if g.Videos == nil {
		g.Videos = []domain.VideoEntry{}
	}
	return g
}
