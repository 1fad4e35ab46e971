package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoTicketsCollection = "tickets"

type MongoStore struct {
	client  *mongo.Client
	tickets *mongo.Collection
}

func OpenMongoDB(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	if uri == "" || database == "" {
		return nil, errors.New("storage.mongodb.uri and storage.mongodb.database must be set to use driver=mongodb")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	coll := client.Database(database).Collection(mongoTicketsCollection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}},
	}); err != nil {
		logger.Warn("could not create owner index", "error", err)
	}

	logger.Info("mongodb ticket store initialised", "database", database)
	return &MongoStore{client: client, tickets: coll}, nil
}

func (m *MongoStore) Create(ctx context.Context, t Ticket) error {
	_, err := m.tickets.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return ErrTicketExists
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, channelID string) (Ticket, error) {
	var t Ticket
	err := m.tickets.FindOne(ctx, bson.M{"_id": channelID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("find ticket: %w", err)
	}
	return t, nil
}

func (m *MongoStore) SetStatus(ctx context.Context, channelID string, status Status) error {
	res, err := m.tickets.UpdateOne(ctx, bson.M{"_id": channelID}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, channelID string) error {
	res, err := m.tickets.DeleteOne(ctx, bson.M{"_id": channelID})
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (m *MongoStore) List(ctx context.Context) ([]Ticket, error) {
	cursor, err := m.tickets.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Ticket
	return out, cursor.All(ctx, &out)
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
