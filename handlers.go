package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lapboard/models"
	"lapboard/pkg/ingest"
	"lapboard/pkg/ocr"
)

var allowedExtensions = map[string]bool{"png": true, "jpg": true, "jpeg": true}

// service is what the handlers need from the pipeline.
type service interface {
	Process(ctx context.Context, up ingest.Upload) (*models.LapRecord, error)
	Leaderboard(ctx context.Context, mapFilter string) ([]models.LapRecord, error)
	Maps(ctx context.Context, query string) ([]string, error)
}

type handlers struct {
	svc       service
	log       *zap.Logger
	maxUpload int64
}

func setupRoutes(r *gin.Engine, h *handlers, uploadBase string) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := r.Group("/api")
	api.POST("/upload", h.uploadHandler)
	api.GET("/laptimes", h.listLaptimesHandler)
	api.GET("/maps", h.listMapsHandler)
	if uploadBase != "" {
		r.Static("/public", uploadBase)
	}
}

// zapLogger logs one line per request, replacing gin's default writer.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func allowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	return allowedExtensions[ext]
}

// uploadHandler accepts a multipart screenshot, runs the pipeline and returns
// the created record with its id.
func (h *handlers) uploadHandler(c *gin.Context) {
	// bound the multipart body before gin spools it to memory or temp files
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": h.tooLargeMessage()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file in request"})
		return
	}
	if file.Filename == "" || !allowedFile(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file selected or file type not allowed (png, jpg, jpeg)"})
		return
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": h.tooLargeMessage()})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	rec, err := h.svc.Process(c.Request.Context(), ingest.Upload{
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.log.Error("upload processing failed", zap.String("file", file.Filename), zap.Error(err))
		if errors.Is(err, ocr.ErrImageTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image dimensions too large"})
			return
		}
		if errors.Is(err, ocr.ErrNotImage) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "uploaded file is not a readable image"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error while processing image: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, createdResponse(rec))
}

func (h *handlers) tooLargeMessage() string {
	return "file too large (max " + strconv.FormatInt(h.maxUpload>>20, 10) + "MB)"
}

// createdResponse is the record plus its string id, which only the upload
// response exposes.
func createdResponse(rec *models.LapRecord) gin.H {
	return gin.H{
		"_id":            strconv.FormatUint(uint64(rec.ID), 10),
		"username":       rec.Username,
		"map_name":       rec.MapName,
		"lap_time":       rec.LapTime,
		"screenshot_url": rec.ScreenshotURL,
		"uploaded_at":    rec.Record().UploadedAt,
	}
}

// listLaptimesHandler returns the ranked records, optionally for one map.
func (h *handlers) listLaptimesHandler(c *gin.Context) {
	recs, err := h.svc.Leaderboard(c.Request.Context(), c.Query("map"))
	if err != nil {
		h.log.Error("lap time query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query lap times"})
		return
	}
	out := make([]models.LapRecord, 0, len(recs))
	for _, r := range recs {
		r.UploadedAt = r.Record().UploadedAt
		out = append(out, r)
	}
	c.JSON(http.StatusOK, out)
}

// listMapsHandler returns "All" followed by the known map names.
func (h *handlers) listMapsHandler(c *gin.Context) {
	names, err := h.svc.Maps(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.log.Error("map query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query maps"})
		return
	}
	c.JSON(http.StatusOK, names)
}
