package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-drawing-inspector/internal/config"
	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/logger"
	"go-drawing-inspector/internal/service"
	"go-drawing-inspector/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MetricsSource exposes counters for the /metrics endpoint
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(svc service.DrawingAnalysisService, metrics MetricsSource, cfg *config.Config) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	if metrics != nil {
		r.GET("/metrics", func(c *gin.Context) {
			c.JSON(http.StatusOK, metrics.GetMetrics())
		})
	}
	r.POST("/analyze", analyzeDrawing(svc, cfg))

	return r
}

func analyzeDrawing(svc service.DrawingAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.AnalysisTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing drawing analysis request")

		var req models.AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		// query parameter takes precedence over the JSON body
		if chaining := c.Query("contextual_chaining"); chaining != "" {
			v := chaining == "true"
			req.ContextualChaining = &v
		}

		if err := svc.ValidateRequest(req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"url": req.URL,
				"ip":  c.ClientIP(),
			}).Error("Invalid analysis request")
			respondError(c, apperrors.GetStatusCode(err), "invalid analysis request", err)
			return
		}

		resp, err := svc.AnalyzeDrawing(ctx, req)
		if err != nil {
			respondError(c, determineStatusCode(err), "drawing analysis failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"url":                req.URL,
			"run_id":             resp.RunID,
			"drawing_id":         resp.DrawingID,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"components":         len(resp.Components),
			"warnings":           len(resp.Warnings),
			"cancelled":          resp.Cancelled,
		}).Info("Drawing analysis completed successfully")

		c.JSON(http.StatusOK, resp)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
