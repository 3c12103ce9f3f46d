package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// authResponse se devuelve tanto en /register como en /login.
type authResponse struct {
	OperatorID string `json:"operator_id"`
	Token      string `json:"token"`
}

// failure traduce un error de dominio a su status HTTP.
type failure struct {
	target  error
	status  int
	message string
}

var (
	registerFailures = []failure{{ErrUserAlreadyExists, http.StatusConflict, "el operador ya existe"}}
	loginFailures    = []failure{{ErrInvalidCredentials, http.StatusUnauthorized, "credenciales inválidas"}}
)

type authFunc func(ctx context.Context, email, password string) (string, string, error)

// Handler atiende el alta y el login de operadores.
type Handler struct {
	svc     Service
	timeout time.Duration
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc, timeout: 5 * time.Second}
}

// RegisterRoutes monta POST /register y POST /login sobre rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.serve(h.svc.Register, http.StatusCreated, registerFailures, "no se pudo registrar"))
	rg.POST("/login", h.serve(h.svc.Login, http.StatusOK, loginFailures, "no se pudo iniciar sesión"))
}

func (h *Handler) serve(fn authFunc, okStatus int, known []failure, fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body credentials
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido", "details": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		id, token, err := fn(ctx, body.Email, body.Password)
		if err != nil {
			status, msg := http.StatusInternalServerError, fallback
			for _, f := range known {
				if errors.Is(err, f.target) {
					status, msg = f.status, f.message
					break
				}
			}
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(okStatus, authResponse{OperatorID: id, Token: token})
	}
}
