package auth

import (
	"context"
	"errors"
	"time"

	"goforward/pkg/styles"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type service struct {
	repo   Repository
	tokens TokenManager
	cost   int
	now    func() time.Time
}

// NewService arma el alta y login de operadores sobre repo, firmando
// los tokens con tokens.
func NewService(repo Repository, tokens TokenManager) Service {
	return &service{
		repo:   repo,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Register(ctx context.Context, email, password string) (string, string, error) {
	email = normalizeEmail(email)
	switch _, err := s.repo.GetByEmail(ctx, email); {
	case err == nil:
		return "", "", ErrUserAlreadyExists
	case !errors.Is(err, ErrUserNotFound):
		return "", "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", "", err
	}
	op := &Operator{
		OperatorID:   uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	// CreateOperator también puede devolver ErrUserAlreadyExists (clave duplicada)
	if err := s.repo.CreateOperator(ctx, op); err != nil {
		return "", "", err
	}

	styles.PrintFS("success", "[AUTH] Operador registrado: %s", op.OperatorID)
	return s.issue(op)
}

func (s *service) Login(ctx context.Context, email, password string) (string, string, error) {
	op, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return "", "", ErrInvalidCredentials
	}
	if err != nil {
		return "", "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		styles.PrintFS("warn", "[AUTH] Login rechazado para %s", op.OperatorID)
		return "", "", ErrInvalidCredentials
	}
	return s.issue(op)
}

func (s *service) issue(op *Operator) (string, string, error) {
	token, err := s.tokens.GenerateToken(op.OperatorID)
	if err != nil {
		return "", "", err
	}
	return op.OperatorID, token, nil
}
