package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions configures the client behind MongoKV. Zero pool sizes and
// timeouts keep the driver defaults.
type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	clientOpts := options.Client().
		ApplyURI(o.URI).
		SetServerSelectionTimeout(5 * time.Second)
	if o.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(o.ConnectTimeout)
	}
	if o.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(o.MinPoolSize)
	}
	return clientOpts
}

// ConnectMongoDB connects and pings before handing back the database.
func ConnectMongoDB(ctx context.Context, o MongoOptions) (*mongo.Database, error) {
	if o.MaxPoolSize > 0 && o.MinPoolSize > o.MaxPoolSize {
		return nil, fmt.Errorf("mongo min pool size %d exceeds max %d", o.MinPoolSize, o.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, o.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(o.Database), nil
}

type mirrorDocument struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoKV keeps one document per key in the cart_mirror collection.
type MongoKV struct {
	collection *mongo.Collection
}

func NewMongoKV(db *mongo.Database) *MongoKV {
	return &MongoKV{collection: db.Collection("cart_mirror")}
}

func (m *MongoKV) Get(ctx context.Context, key string) ([]byte, error) {
	var doc mirrorDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mirror: %w", err)
	}
	return doc.Value, nil
}

func (m *MongoKV) Set(ctx context.Context, key string, value []byte) error {
	update := bson.M{"$set": bson.M{"value": value, "updated_at": time.Now()}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert mirror: %w", err)
	}
	return nil
}

func (m *MongoKV) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete mirror: %w", err)
	}
	return nil
}

// CreateIndexes expires mirrors that have not been written for 90 days.
func (m *MongoKV) CreateIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
	}
	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
