package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// ErrNotReplicaSet is returned when the deployment cannot run multi-document transactions.
var ErrNotReplicaSet = errors.New("mongodb deployment is not a replica set")

// ConnectMongoDB opens a client with majority writes and primary reads, and refuses
// standalone servers since every stock mutation runs in a transaction.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("verto").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetRetryWrites(true).
		SetReadPreference(readpref.Primary()).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	if err := requireReplicaSet(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

func requireReplicaSet(ctx context.Context, db *mongo.Database) error {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return fmt.Errorf("failed to inspect MongoDB topology: %w", err)
	}
	// mongos answers with msg "isdbgrid" and supports transactions
	if hello.SetName == "" && hello.Msg != "isdbgrid" {
		return ErrNotReplicaSet
	}
	return nil
}
