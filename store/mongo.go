package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"
)

// MongoObjectStore implements ObjectStore using MongoDB GridFS. Artifacts
// are addressed as gridfs://<database>/<bucket>/<id>.
type MongoObjectStore struct {
	client     *mongo.Client
	bucket     *gridfs.Bucket
	dbName     string
	bucketName string
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI      string
	Database string
	Bucket   string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "modelgate",
		Bucket:   "artifacts",
	}
}

// NewMongoObjectStore creates a GridFS-backed artifact store.
func NewMongoObjectStore(config *MongoConfig) (*MongoObjectStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	bucket, err := gridfs.NewBucket(
		client.Database(config.Database),
		options.GridFSBucket().SetName(config.Bucket),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket: %w", err)
	}

	return &MongoObjectStore{
		client:     client,
		bucket:     bucket,
		dbName:     config.Database,
		bucketName: config.Bucket,
	}, nil
}

func (s *MongoObjectStore) Store(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	meta := bson.M{}
	for k, v := range metadata {
		meta[k] = v
	}

	name := metadata["filename"]
	if name == "" {
		name = uuid.NewString()
	}

	// GridFS uploads honor deadlines through the bucket, not a context.
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.bucket.SetWriteDeadline(deadline)
	}

	uploadOpts := options.GridFSUpload().SetMetadata(meta)
	id, err := s.bucket.UploadFromStream(name, bytes.NewReader(data), uploadOpts)
	if err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return fmt.Sprintf("gridfs://%s/%s/%s", s.dbName, s.bucketName, id.Hex()), nil
}

// Close disconnects the underlying MongoDB client.
func (s *MongoObjectStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
