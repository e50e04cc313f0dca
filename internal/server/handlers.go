package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fmueller/transkribera/internal/apperr"
	"github.com/fmueller/transkribera/internal/audio"
	"github.com/fmueller/transkribera/internal/batch"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	errNoAudio      = "No audio file provided"
	errNoFile       = "No file selected"
	errNotLoaded    = "Model not loaded yet"
	errNoText       = "No text to download"
	defaultFilename = "transcription"
)

var uploadExtPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

func (a *App) handleIndex(c *gin.Context) {
	accept := append([]string{"audio/*"}, audio.SupportedExtensions()...)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Model":       a.cfg.Model.Name,
		"MaxUploadMB": a.cfg.Server.MaxUploadMB,
		"Accept":      strings.Join(accept, ","),
	})
}

func (a *App) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.readiness.Status())
}

func (a *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTranscribe validates the upload before looking at model state, so a
// missing file is always a 400.
func (a *App) handleTranscribe(c *gin.Context) {
	if limit := a.cfg.MaxUploadBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File too large (limit %d MB)", a.cfg.Server.MaxUploadMB)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoAudio})
		return
	}
	if strings.TrimSpace(fh.Filename) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoFile})
		return
	}

	t, ready := a.readiness.Transcriber()
	if !ready {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errNotLoaded})
		return
	}

	tempPath := filepath.Join(a.uploadDir, "transkribera-upload-"+uuid.NewString()+uploadExt(fh.Filename))
	defer func() {
		if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove upload", zap.String("path", tempPath), zap.Error(err))
		}
	}()

	if err := c.SaveUploadedFile(fh, tempPath); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	started := time.Now()
	result, err := t.TranscribeFile(c.Request.Context(), tempPath, a.cfg.Transcribe.Language)
	elapsed := time.Since(started)
	a.metrics.RecordTranscription("web", elapsed, err)

	if err != nil {
		_ = c.Error(err)
		a.logger.Warn("transcription failed",
			zap.String("file", fh.Filename),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	a.logger.Info("transcribed upload",
		zap.String("file", fh.Filename),
		zap.Int64("bytes", fh.Size),
		zap.Float64("audio_seconds", result.AudioSeconds),
		zap.Duration("elapsed", elapsed),
	)
	c.JSON(http.StatusOK, gin.H{
		"transcription":   result.Text,
		"processing_time": fmt.Sprintf("%.2f seconds", elapsed.Seconds()),
	})
}

// handleDownload echoes text back as an attachment. Nothing touches disk.
func (a *App) handleDownload(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		c.String(http.StatusBadRequest, errNoText)
		return
	}

	name := batch.OutputName(c.DefaultQuery("filename", defaultFilename))
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = `attachment; filename="` + defaultFilename + batch.OutputSuffix + `"`
	}

	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if uploadExtPattern.MatchString(ext) {
		return ext
	}
	return ""
}
