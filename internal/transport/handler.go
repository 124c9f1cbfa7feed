package transport

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-pneumonet-api/internal/apperrors"
	"go-pneumonet-api/internal/config"
	"go-pneumonet-api/internal/imaging"
	"go-pneumonet-api/internal/logger"
	"go-pneumonet-api/internal/service"
	"go-pneumonet-api/pkg/models"
)

// formOverhead is slack for multipart boundaries and headers on top of the
// configured image payload limit.
const formOverhead = 1 << 20

type base64Request struct {
	Image string `json:"image" binding:"required"`
}

type thresholdRequest struct {
	Threshold *float64 `json:"threshold" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler builds the HTTP boundary around the prediction service.
func NewHandler(svc service.PredictionService, cfg *config.Config) http.Handler {
	r := gin.Default()

	r.Use(requestSizeLimiter(cfg.MaxUploadBytes + formOverhead))

	r.GET("/", index)
	r.GET("/health", health(svc))
	r.GET("/info", modelInfo(svc))
	r.POST("/predict", predict(svc))
	r.POST("/predict-batch", predictBatch(svc))
	r.GET("/threshold", getThreshold(svc))
	r.POST("/threshold", setThreshold(svc))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "endpoint not found"})
	})

	return r
}

// predict accepts either a multipart upload under the "image" field or a
// JSON body with a base64-encoded "image" string.
func predict(svc service.PredictionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var src imaging.Source

		if isMultipart(c.Request) {
			fh, err := c.FormFile("image")
			if err != nil {
				respondFormError(c, err, "no image file provided; use 'image' as the form field name")
				return
			}
			src, err = imaging.SourceFromMultipart(fh)
			if err != nil {
				respondAppError(c, err)
				return
			}
		} else {
			var req base64Request
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:   "bad_request",
					Message: "no image file or JSON data provided",
				})
				return
			}
			src = imaging.SourceFromBase64(req.Image)
		}

		envelope, err := svc.Predict(c.Request.Context(), src)
		if err != nil {
			respondAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, envelope)
	}
}

// predictBatch accepts repeated multipart uploads under the "images" field.
// The response is always 200 when the batch ran, even with per-item
// failures; only a missing model yields 503.
func predictBatch(svc service.PredictionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			respondFormError(c, err, "no images provided; use 'images' as the form field name")
			return
		}

		files := form.File["images"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "bad_request",
				Message: "no images selected",
			})
			return
		}

		sources := make([]imaging.Source, 0, len(files))
		for _, fh := range files {
			src, err := imaging.SourceFromMultipart(fh)
			if err != nil {
				// Keep the slot so the batch stays index-aligned.
				src = imaging.SourceFromBytes(fh.Filename, nil)
			}
			sources = append(sources, src)
		}

		envelope, err := svc.PredictBatch(c.Request.Context(), sources)
		if err != nil {
			respondAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, envelope)
	}
}

func health(svc service.PredictionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Health())
	}
}

func modelInfo(svc service.PredictionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.ModelInfo())
	}
}

func getThreshold(svc service.PredictionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.ThresholdResponse{
			CurrentThreshold: svc.Threshold(),
			Description:      "Probability threshold for pneumonia classification",
		})
	}
}

func setThreshold(svc service.PredictionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req thresholdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "bad_request",
				Message: "threshold parameter required",
			})
			return
		}

		updated, err := svc.SetThreshold(*req.Threshold)
		if err != nil {
			respondAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ThresholdUpdate{
			Status:       "success",
			NewThreshold: updated,
			Message:      "Classification threshold updated",
		})
	}
}

func index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "PneumoNet AI - Pneumonia Detection API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"GET /":               "This help message",
			"GET /health":         "Health check",
			"GET /info":           "Model information",
			"POST /predict":       "Single image prediction (multipart form or base64 JSON)",
			"POST /predict-batch": "Batch image prediction",
			"GET /threshold":      "Get current classification threshold",
			"POST /threshold":     "Update classification threshold",
		},
		"usage": gin.H{
			"single_prediction_curl": "curl -X POST -F \"image=@image.jpg\" http://localhost:8080/predict",
			"batch_prediction_curl":  "curl -X POST -F \"images=@image1.jpg\" -F \"images=@image2.jpg\" http://localhost:8080/predict-batch",
			"base64_prediction":      "POST /predict with JSON body: {\"image\": \"base64_encoded_image_string\"}",
		},
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// respondFormError distinguishes an oversize body (surfaced by the request
// limiter while parsing the form) from a missing field.
func respondFormError(c *gin.Context, err error, missingMsg string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		respondAppError(c, apperrors.NewPayloadTooLarge(c.Request.ContentLength, maxErr.Limit))
	case errors.Is(err, multipart.ErrMessageTooLarge),
		strings.Contains(err.Error(), "request body too large"):
		respondAppError(c, apperrors.NewPayloadTooLarge(c.Request.ContentLength, 0))
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: missingMsg})
	}
}

func respondAppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternal("request processing failed", err)
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": appErr.StatusCode,
		"kind":        appErr.Kind,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
	}).Error("Request failed")

	c.AbortWithStatusJSON(appErr.StatusCode, appErr)
}
