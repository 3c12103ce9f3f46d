package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Operator es una cuenta habilitada para enviar trabajos al gateway.
// Los workers no se autentican.
type Operator struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	OperatorID   string        `bson:"operatorId" json:"operatorId"`
	Email        string        `bson:"email" json:"email"`
	PasswordHash string        `bson:"password" json:"-"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
}

// Errores de dominio de auth.
var (
	ErrUserAlreadyExists  = errors.New("auth: operator already exists")
	ErrUserNotFound       = errors.New("auth: operator not found")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// Repository define las operaciones necesarias contra la persistencia.
type Repository interface {
	CreateOperator(ctx context.Context, op *Operator) error
	GetByEmail(ctx context.Context, email string) (*Operator, error)
}

// Service define la lógica de negocio expuesta a los handlers.
type Service interface {
	Register(ctx context.Context, email, password string) (operatorID, token string, err error)
	Login(ctx context.Context, email, password string) (operatorID, token string, err error)
}

// TokenManager abstrae la generación y validación de tokens.
type TokenManager interface {
	GenerateToken(operatorID string) (string, error)
	ValidateToken(token string) (string, error)
}
