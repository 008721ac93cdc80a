package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"socratic/models"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	mongoConnectTimeout     = 10 * time.Second
)

type MongoConversationRepository struct {
	client        *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewMongoConversationRepository(ctx context.Context, uri, database string) (*MongoConversationRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	repo := &MongoConversationRepository{
		client:        client,
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return repo, nil
}

func (r *MongoConversationRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_email", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	_, err = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_email", Value: 1}, {Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

// SaveConversation upserts the record unless a newer one is stored. A newer
// record makes the filter miss, and the upsert then trips the unique index.
func (r *MongoConversationRepository) SaveConversation(ctx context.Context, record *models.ConversationRecord) error {
	_, err := r.conversations.ReplaceOne(ctx,
		bson.M{
			"session_id": record.SessionID,
			"updated_at": bson.M{"$lte": record.UpdatedAt},
		},
		record,
		options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", record.SessionID, err)
	}
	return nil
}

func (r *MongoConversationRepository) AppendMessage(ctx context.Context, entry *models.MessageLogEntry) error {
	if _, err := r.messages.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append message for %s: %w", entry.SessionID, err)
	}
	return nil
}

func (r *MongoConversationRepository) GetConversationsByOwner(ctx context.Context, owner string) ([]*models.ConversationRecord, error) {
	cursor, err := r.conversations.Find(ctx,
		bson.M{"user_email": owner},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}

	records := []*models.ConversationRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return records, nil
}

func (r *MongoConversationRepository) GetConversation(ctx context.Context, owner, sessionID string) (*models.ConversationRecord, error) {
	record := &models.ConversationRecord{}
	err := r.conversations.FindOne(ctx, bson.M{"user_email": owner, "session_id": sessionID}).Decode(record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return record, nil
}

func (r *MongoConversationRepository) GetMessages(ctx context.Context, owner, sessionID string) ([]*models.MessageLogEntry, error) {
	cursor, err := r.messages.Find(ctx,
		bson.M{"user_email": owner, "session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	entries := []*models.MessageLogEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return entries, nil
}

func (r *MongoConversationRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}
