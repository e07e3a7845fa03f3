// Package httpapi exposes stored detections and on-demand recognition over
// HTTP for review tooling.
package httpapi

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/imaging"
	"github.com/ironsheep/visionguard/internal/pipeline"
	"github.com/ironsheep/visionguard/internal/store"
)

const (
	defaultLimit = store.DefaultRecentLimit
	maxLimit     = 500

	// maxUploadBytes bounds multipart bodies on /recognize.
	maxUploadBytes = 32 << 20
)

// Store is the read side of the detection store.
type Store interface {
	Recent(ctx context.Context, limit int) ([]store.Detection, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Processor runs the plate pipeline on one decoded image.
type Processor interface {
	Process(ctx context.Context, img image.Image, source string) ([]pipeline.Detection, error)
}

type Handler struct {
	store     Store
	processor Processor
	config    config.HTTP
	log       zerolog.Logger
}

func NewHandler(st Store, processor Processor, cfg config.HTTP, log zerolog.Logger) *Handler {
	return &Handler{
		store:     st,
		processor: processor,
		config:    cfg,
		log:       log,
	}
}

// NewRouter returns a gin engine with CORS and every route registered.
func (h *Handler) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())
	r.Use(cors.New(corsConfig(h.config.CORSOrigins)))
	h.Register(r)
	return r
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	public := r.Group("/api/v1")
	{
		public.GET("/detections", h.listDetections)
	}

	protected := r.Group("/api/v1")
	if h.config.JWTSecret != "" {
		protected.Use(BearerAuth(h.config.JWTSecret))
	}
	{
		protected.POST("/recognize", h.recognize)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func (h *Handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("store ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	count, err := h.store.Count(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("store count failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "detections": count})
}

func (h *Handler) listDetections(c *gin.Context) {
	limit := defaultLimit
	if l := strings.TrimSpace(c.Query("limit")); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			c.JSON(http.StatusBadRequest, errorResponse("limit must be an integer between 1 and 500"))
			return
		}
		limit = parsed
	}

	dets, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list detections")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(dets))
}

func (h *Handler) recognize(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("multipart field 'image' is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	source := strings.TrimSpace(c.PostForm("source"))
	if source == "" {
		source = "upload:" + fh.Filename
	}

	dets, err := h.processor.Process(c.Request.Context(), img, source)
	if err != nil {
		h.handleError(c, err, dets)
		return
	}

	c.JSON(http.StatusOK, successResponse(dets))
}

func (h *Handler) handleError(c *gin.Context, err error, dets []pipeline.Detection) {
	switch {
	case errors.Is(err, imaging.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, store.ErrWrite):
		h.log.Error().Err(err).Msg("detections not persisted")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "data": dets})
	default:
		h.log.Error().Err(err).Msg("recognize failed")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
