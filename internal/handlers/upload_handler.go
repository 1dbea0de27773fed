package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 10 << 20

// allowedUploadTypes are the document formats reviewers can open.
var allowedUploadTypes = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".rtf":  true,
}

// UploadFile handles POST /v1/uploads
// It saves the file to the upload directory and returns the URL.
func (h *Handlers) UploadFile(c *gin.Context) {
	// 1. Get the file from the request
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedUploadTypes[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is larger than 10 MB"})
		return
	}

	// 2. Create the upload directory if it doesn't exist
	uploadPath := h.UploadDir
	if uploadPath == "" {
		uploadPath = "./uploads"
	}
	if err := os.MkdirAll(uploadPath, 0o755); err != nil {
		h.Log.WithError(err).Error("failed to create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	// 3. Generate a safe unique filename (uuid + extension)
	newFilename := uuid.New().String() + ext
	savePath := filepath.Join(uploadPath, newFilename)

	// 4. Save the file
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		h.Log.WithError(err).Error("failed to save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	// 5. Return the public URL
	publicURL := fmt.Sprintf("%s/uploads/%s", strings.TrimRight(h.BaseURL, "/"), newFilename)
	c.JSON(http.StatusCreated, gin.H{
		"url":      publicURL,
		"fileName": file.Filename,
		"size":     file.Size,
	})
}
