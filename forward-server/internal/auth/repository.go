package auth

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const CollectionName = "operators"

type mongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository crea un repositorio de operadores basado en MongoDB.
func NewMongoRepository(coll *mongo.Collection) Repository {
	return &mongoRepository{coll: coll}
}

func (r *mongoRepository) CreateOperator(ctx context.Context, op *Operator) error {
	op.Email = normalizeEmail(op.Email)

	res, err := r.coll.InsertOne(ctx, op)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserAlreadyExists
		}
		return err
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		op.ID = id
	}
	return nil
}

func (r *mongoRepository) GetByEmail(ctx context.Context, email string) (*Operator, error) {
	email = normalizeEmail(email)

	var op Operator
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&op)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &op, nil
}

func normalizeEmail(e string) string {
	return strings.TrimSpace(strings.ToLower(e))
}
