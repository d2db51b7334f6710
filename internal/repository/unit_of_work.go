package repository

import (
	"context"
	"fmt"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Tx scopes store calls to one atomic group. Store methods that mutate take a Tx so that
// the group boundary is visible where they are called.
type Tx struct {
	ctx context.Context
}

func (tx Tx) Context() context.Context {
	return tx.ctx
}

// NoTx runs a store call on its own, outside any atomic group.
func NoTx(ctx context.Context) Tx {
	return Tx{ctx: ctx}
}

// UnitOfWork runs fn inside one transaction: every store call made with the given Tx commits
// together or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Tx) error) error
}

type mongoUnitOfWork struct {
	client *mongo.Client
}

func NewMongoUnitOfWork(db *mongo.Database) UnitOfWork {
	return &mongoUnitOfWork{client: db.Client()}
}

// Do uses the driver's transaction helper, which re-runs fn only when the server labels the
// failure transient (a write conflict with a concurrent transaction). fn re-reads its state
// on every run, so conflicting mutations serialize. Domain errors returned by fn abort the
// transaction and are passed back unchanged; anything else is reported as ErrTransactionAborted.
func (u *mongoUnitOfWork) Do(ctx context.Context, fn func(tx Tx) error) error {
	session, err := u.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session: %v", domain.ErrTransactionAborted, err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(Tx{ctx: sc})
	}, txnOpts)
	if err == nil {
		return nil
	}
	if domain.IsKnown(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransactionAborted, err)
}
