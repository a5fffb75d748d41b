package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/serroba/tierlink/internal/shortener"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	shortIndex = "short_1"
	longIndex  = "long_1"
)

type urlDocument struct {
	Short     string    `bson:"short"`
	Long      string    `bson:"long"`
	CreatedAt time.Time `bson:"created_at"`
}

type statsDocument struct {
	Short  string `bson:"short"`
	Visits int64  `bson:"visits"`
}

// MongoStore is a MongoDB implementation of shortener.Repository and
// shortener.VisitRepository. Mappings live in the "urls" collection and
// counters in "stats".
type MongoStore struct {
	client *mongo.Client
	urls   *mongo.Collection
	stats  *mongo.Collection
}

// NewMongoStore creates a new MongoDB-backed store on the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)

	return &MongoStore{
		client: client,
		urls:   db.Collection("urls"),
		stats:  db.Collection("stats"),
	}
}

// EnsureIndexes creates the unique indexes the store relies on.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := m.urls.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "short", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "long", Value: 1}}, Options: unique},
	})
	if err != nil {
		return fmt.Errorf("create urls indexes: %w", err)
	}

	_, err = m.stats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "short", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("create stats index: %w", err)
	}

	return nil
}

func (m *MongoStore) FindByLong(ctx context.Context, long string) (*shortener.Mapping, error) {
	return m.findOne(ctx, bson.M{"long": long})
}

func (m *MongoStore) FindByShort(ctx context.Context, short shortener.Code) (*shortener.Mapping, error) {
	return m.findOne(ctx, bson.M{"short": string(short)})
}

func (m *MongoStore) findOne(ctx context.Context, filter bson.M) (*shortener.Mapping, error) {
	var doc urlDocument

	if err := m.urls.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, shortener.ErrNotFound
		}

		return nil, err
	}

	return &shortener.Mapping{
		Short:     shortener.Code(doc.Short),
		Long:      doc.Long,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (m *MongoStore) Insert(ctx context.Context, mapping *shortener.Mapping) error {
	_, err := m.urls.InsertOne(ctx, urlDocument{
		Short:     string(mapping.Short),
		Long:      mapping.Long,
		CreatedAt: mapping.CreatedAt,
	})
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}

	switch duplicateIndex(err) {
	case shortIndex:
		return shortener.ErrShortTaken
	case longIndex:
		return shortener.ErrLongTaken
	}

	_, findErr := m.FindByLong(ctx, mapping.Long)

	return takenBy(findErr)
}

// duplicateIndex returns the name of the unique index a duplicate key
// error was raised on, or "" when the server did not say.
func duplicateIndex(err error) string {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return ""
	}

	for _, writeErr := range we.WriteErrors {
		for _, name := range []string{shortIndex, longIndex} {
			if strings.Contains(writeErr.Message, "index: "+name+" ") {
				return name
			}
		}
	}

	return ""
}

// takenBy decides which value collided from a lookup of the long URL.
func takenBy(findErr error) error {
	switch {
	case findErr == nil:
		return shortener.ErrLongTaken
	case errors.Is(findErr, shortener.ErrNotFound):
		return shortener.ErrShortTaken
	default:
		return fmt.Errorf("resolve duplicate key: %w", findErr)
	}
}

func (m *MongoStore) IncrementVisits(ctx context.Context, short shortener.Code) (uint64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc statsDocument

	err := m.stats.FindOneAndUpdate(ctx,
		bson.M{"short": string(short)},
		bson.M{"$inc": bson.M{"visits": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}

	return uint64(doc.Visits), nil
}

func (m *MongoStore) Visits(ctx context.Context, short shortener.Code) (uint64, error) {
	var doc statsDocument

	err := m.stats.FindOne(ctx, bson.M{"short": string(short)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}

		return 0, err
	}

	return uint64(doc.Visits), nil
}

// Ping checks MongoDB connectivity.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Shutdown disconnects the client.
func (m *MongoStore) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}

var (
	_ shortener.Repository      = (*MongoStore)(nil)
	_ shortener.VisitRepository = (*MongoStore)(nil)
)
