package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// UnitOfWork runs a callback inside a multi-document transaction. Standalone
// servers do not support transactions, so it can be switched off.
type UnitOfWork struct {
	client  *mongo.Client
	enabled bool
}

func NewUnitOfWork(client *mongo.Client, enabled bool) *UnitOfWork {
	return &UnitOfWork{client: client, enabled: enabled}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !u.enabled {
		return fn(ctx)
	}

	session, err := u.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
