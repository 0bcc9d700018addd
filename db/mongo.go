package db

import (
	"context"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sonarid/apperr"
	"sonarid/models"
)

// postingDoc mirrors one (hash, song_id, anchor_time) triple. Hash values
// are stored as strings: BSON's int64 is signed and MongoDB's query
// planner indexes strings and int64s equally well, but a string sidesteps
// any ambiguity converting an unsigned 64-bit hash to a signed wire type.
type postingDoc struct {
	Hash       string `bson:"hash"`
	SongID     int64  `bson:"song_id"`
	AnchorTime uint32 `bson:"anchor_time"`
}

// MongoPostingsIndex is the PostingsIndex implementation, grounded on the
// teacher's go.mod dependency on go.mongodb.org/mongo-driver: a single
// "postings" collection indexed on hash, giving the near-constant-time
// lookup by hash_value spec.md §4.5 requires at the 10^8-posting scale.
type MongoPostingsIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongoPostingsIndex connects to uri/database and ensures the hash
// index spec.md §4.5 requires for near-constant-time posting lookup.
func OpenMongoPostingsIndex(ctx context.Context, uri, database string) (*MongoPostingsIndex, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}

	collection := client.Database(database).Collection("postings")
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "hash", Value: 1}},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "song_id", Value: 1}},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}

	return &MongoPostingsIndex{client: client, collection: collection}, nil
}

func (m *MongoPostingsIndex) AddPostings(ctx context.Context, songID uint64, fingerprints map[uint64]models.Couple) error {
	if len(fingerprints) == 0 {
		return nil
	}

	docs := make([]any, 0, len(fingerprints))
	for hash, couple := range fingerprints {
		docs = append(docs, postingDoc{
			Hash:       strconv.FormatUint(hash, 10),
			SongID:     int64(couple.SongID),
			AnchorTime: couple.AnchorTime,
		})
	}

	const batchSize = 1000
	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if _, err := m.collection.InsertMany(ctx, docs[i:end]); err != nil {
			return apperr.Wrapf(apperr.KindIOError, err, "inserting postings for song %d", songID)
		}
	}

	return nil
}

func (m *MongoPostingsIndex) Search(ctx context.Context, hashes []uint64) (map[uint64][]models.Couple, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	hashStrings := make([]string, len(hashes))
	hashByString := make(map[string]uint64, len(hashes))
	for i, h := range hashes {
		s := strconv.FormatUint(h, 10)
		hashStrings[i] = s
		hashByString[s] = h
	}

	cursor, err := m.collection.Find(ctx, bson.M{"hash": bson.M{"$in": hashStrings}})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}
	defer cursor.Close(ctx)

	results := make(map[uint64][]models.Couple)
	for cursor.Next(ctx) {
		var doc postingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, apperr.Wrap(apperr.KindIOError, err)
		}
		hash := hashByString[doc.Hash]
		results[hash] = append(results[hash], models.Couple{
			SongID:     uint64(doc.SongID),
			AnchorTime: doc.AnchorTime,
		})
	}
	return results, cursor.Err()
}

func (m *MongoPostingsIndex) RemovePostings(ctx context.Context, songID uint64) error {
	_, err := m.collection.DeleteMany(ctx, bson.M{"song_id": int64(songID)})
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, err)
	}
	return nil
}

func (m *MongoPostingsIndex) Count(ctx context.Context) (int64, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIOError, err)
	}
	return n, nil
}

func (m *MongoPostingsIndex) Close() error {
	return m.client.Disconnect(context.Background())
}
