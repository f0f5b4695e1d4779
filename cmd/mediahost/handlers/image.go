package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/cmd/mediahost/middleware"
	"github.com/pixelbay/mediahost/cmd/mediahost/service"
	"github.com/pixelbay/mediahost/common/cache"
	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/models"
	"github.com/pixelbay/mediahost/common/quota"
)

// Uploader is the upload lifecycle surface the handler needs
type Uploader interface {
	Submit(ctx context.Context, sub *models.Subject, req service.SubmitRequest) (*service.SubmitResult, error)
	Delete(ctx context.Context, sub *models.Subject, imageID uuid.UUID) error
}

// ImageReader loads image records and their generated variants
type ImageReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error)
	Variants(ctx context.Context, id uuid.UUID) ([]models.ArtifactVariant, error)
}

// ImageHandler handles upload registration and image lifecycle. Lookup
// responses are cached per owner and image; a nil cache disables caching.
type ImageHandler struct {
	uploads  Uploader
	images   ImageReader
	cache    cache.Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewImageHandler creates an image handler
func NewImageHandler(uploads Uploader, images ImageReader, responseCache cache.Cache, cacheTTL time.Duration, log *logger.Logger) *ImageHandler {
	return &ImageHandler{
		uploads:  uploads,
		images:   images,
		cache:    responseCache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Submit registers an upload and queues variant generation
// POST /api/v1/images
func (h *ImageHandler) Submit(c echo.Context) error {
	sub, ok := middleware.GetSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("authentication required"))
	}

	var req service.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.SHA256 == "" || req.StoragePath == "" || req.SizeBytes <= 0 {
		return c.JSON(http.StatusBadRequest, errorBody("sha256, storage_path and size_bytes are required"))
	}

	result, err := h.uploads.Submit(c.Request().Context(), sub, req)
	if err != nil {
		var denied *service.QuotaDeniedError
		if errors.As(err, &denied) {
			return c.JSON(quotaDenyStatus(denied), map[string]interface{}{
				"error":      "quota_exceeded",
				"violations": denied.Result.Violations,
				"usage":      denied.Result.Usage,
			})
		}
		h.log.Error("upload submission failed", "subject_id", sub.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("upload submission failed"))
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	return c.JSON(status, result)
}

// Get returns one image record with its variants. The serialized response
// is cached so repeat lookups skip the record store; the authorization
// check is baked into the cache key by scoping entries to the requesting
// owner.
// GET /api/v1/images/:id
func (h *ImageHandler) Get(c echo.Context) error {
	sub, ok := middleware.GetSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("authentication required"))
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid image id"))
	}

	ctx := c.Request().Context()
	key := imageCacheKey(sub.OwnerID, id)
	if h.cache != nil {
		if payload, found, err := h.cache.Get(ctx, key); err == nil && found {
			return c.JSONBlob(http.StatusOK, payload)
		}
	}

	img, err := h.images.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody("image not found"))
	}
	if img.OwnerID != sub.OwnerID && !img.IsPublic {
		return c.JSON(http.StatusNotFound, errorBody("image not found"))
	}

	variants, err := h.images.Variants(ctx, id)
	if err != nil {
		h.log.Error("variant lookup failed", "image_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("variant lookup failed"))
	}

	body := map[string]interface{}{
		"image":    img,
		"variants": variants,
	}
	if h.cache != nil {
		if payload, err := json.Marshal(body); err == nil {
			if err := h.cache.Set(ctx, key, payload, h.cacheTTL); err != nil {
				h.log.Warn("image response not cached", "image_id", id, "error", err)
			}
		}
	}
	return c.JSON(http.StatusOK, body)
}

// Delete soft-deletes an image and drops its cached response. Copies
// cached for other viewers of a public image age out with the TTL.
// DELETE /api/v1/images/:id
func (h *ImageHandler) Delete(c echo.Context) error {
	sub, ok := middleware.GetSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("authentication required"))
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid image id"))
	}

	if err := h.uploads.Delete(c.Request().Context(), sub, id); err != nil {
		return c.JSON(http.StatusNotFound, errorBody("image not found"))
	}
	if h.cache != nil {
		if err := h.cache.Delete(c.Request().Context(), imageCacheKey(sub.OwnerID, id)); err != nil {
			h.log.Warn("image cache invalidation failed", "image_id", id, "error", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func imageCacheKey(ownerID string, id uuid.UUID) string {
	return fmt.Sprintf("image:%s:%s", ownerID, id)
}

func quotaDenyStatus(denied *service.QuotaDeniedError) int {
	v := denied.Result.Violations
	if len(v) == 1 && v[0].Kind == quota.FileSizeExceeded {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusForbidden
}

func errorBody(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}
