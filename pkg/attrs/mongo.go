package attrs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig configures a [MongoStore].
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore keeps one document per element:
//
//	{_id: "<element id>", attrs: {"<name>": "<value>", ...}}
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

type mongoDoc struct {
	ID    string            `bson:"_id"`
	Attrs map[string]string `bson:"attrs"`
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "queryview"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewMongoStoreFromCollection(client.Database(cfg.Database).Collection(collectionName(cfg.Collection)))
	s.client, s.owned = client, true
	return s, nil
}

// NewMongoStoreFromCollection wraps an existing collection. The caller
// keeps ownership of the client.
func NewMongoStoreFromCollection(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func collectionName(name string) string {
	if name == "" {
		return "block_attrs"
	}
	return name
}

func (s *MongoStore) Read(ctx context.Context, id string) (map[string]string, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attrs: %w", err)
	}
	return clone(doc.Attrs), nil
}

func (s *MongoStore) Write(ctx context.Context, id string, attrs map[string]string) error {
	set, unset := bson.M{}, bson.M{}
	for name, value := range attrs {
		// Dots would address nested fields.
		if strings.ContainsAny(name, ".$") {
			return fmt.Errorf("invalid attribute name %q", name)
		}
		if value == "" {
			unset["attrs."+name] = ""
		} else {
			set["attrs."+name] = value
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update attrs: %w", err)
	}
	return nil
}

// Close disconnects the client when the store created it.
func (s *MongoStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)
