package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"

	"goforward/forward-server/internal/dispatcher"
	"goforward/forward-server/internal/source"
	"goforward/pkg/styles"
	"goforward/pkg/types"

	"github.com/gin-gonic/gin"
)

type jobHandler struct {
	dispatcher  Dispatcher
	source      source.FrameSource
	workers     func() []types.WorkerInfo
	maxBodySize int64
}

func (h *jobHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/process", h.process)
	g.GET("/image/:id", h.image)
	g.GET("/cameras", h.cameras)
	g.GET("/workers", h.listWorkers)
}

// process manda el body tal cual a un worker.
func (h *jobHandler) process(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload demasiado grande"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no se pudo leer el payload"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload vacío"})
		return
	}

	h.forward(c, body, contentTypeOr(c.ContentType(), "application/octet-stream"))
}

// image captura un frame de la cámara :id y devuelve el resultado procesado.
// El Content-Type se detecta sobre la respuesta del worker.
func (h *jobHandler) image(c *gin.Context) {
	if h.source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no hay fuente de frames configurada"})
		return
	}

	id := c.Param("id")
	frame, err := h.source.Capture(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, source.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cámara no encontrada", "id": id})
			return
		}
		styles.PrintFS("error", "[HTTP] Error capturando frame de %s: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "no se pudo capturar el frame"})
		return
	}

	// el tipo sale de los bytes devueltos: un frame PNG vuelve como image/png
	h.forward(c, frame, "")
}

func (h *jobHandler) cameras(c *gin.Context) {
	if h.source == nil {
		c.JSON(http.StatusOK, []source.Device{})
		return
	}
	devs, err := h.source.Cameras(c.Request.Context())
	if err != nil {
		styles.PrintFS("error", "[HTTP] Error listando cámaras: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo listar las cámaras"})
		return
	}
	if devs == nil {
		devs = []source.Device{}
	}
	c.JSON(http.StatusOK, devs)
}

func (h *jobHandler) listWorkers(c *gin.Context) {
	workers := []types.WorkerInfo{}
	if h.workers != nil {
		if ws := h.workers(); ws != nil {
			workers = ws
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(workers), "workers": workers})
}

func (h *jobHandler) forward(c *gin.Context, payload []byte, contentType string) {
	out, err := h.dispatcher.Dispatch(c.Request.Context(), payload)
	if err != nil {
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(out)
	}
	c.Data(http.StatusOK, contentType, out)
}

// statusFor traduce los errores del dispatcher a códigos HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, dispatcher.ErrNoAvailableWorkers):
		return http.StatusServiceUnavailable, "no hay workers disponibles"
	case errors.Is(err, dispatcher.ErrDeliveryFailed):
		return http.StatusBadGateway, "falló la entrega al worker"
	case errors.Is(err, dispatcher.ErrTimeout):
		return http.StatusGatewayTimeout, "el worker no respondió a tiempo"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelado"
	default:
		return http.StatusInternalServerError, "error interno"
	}
}

func contentTypeOr(ct, def string) string {
	if ct == "" {
		return def
	}
	return ct
}
