package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/models"
)

const documentColumns = `id, application_id, kind, title, content, file_url, word_count, created_at, updated_at`

type DocumentInput struct {
	Kind    string  `json:"kind" binding:"required,oneof=PERSONAL_STATEMENT CV LOR MSPE OTHER"`
	Title   string  `json:"title" binding:"required,max=255"`
	Content *string `json:"content"`
	FileURL *string `json:"fileUrl" binding:"omitempty,url"`
}

// CreateDocument is the handler for POST /v1/applications/:id/documents.
func (h *Handlers) CreateDocument(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	appID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input DocumentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Content == nil && input.FileURL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either content or fileUrl is required"})
		return
	}

	// 2. --- Check Ownership & State ---
	app, ok := h.applicationFor(c, appID)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}

	// 3. --- Save to Database ---
	now := h.now()
	doc := models.Document{
		ApplicationID: app.ID,
		Kind:          input.Kind,
		Title:         strings.TrimSpace(input.Title),
		Content:       input.Content,
		FileURL:       input.FileURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if doc.Content != nil {
		doc.WordCount = models.WordCount(*doc.Content)
	}
	result, err := h.DB.NamedExecContext(c.Request.Context(), `
		INSERT INTO documents
		(application_id, kind, title, content, file_url, word_count, created_at, updated_at)
		VALUES
		(:application_id, :kind, :title, :content, :file_url, :word_count, :created_at, :updated_at)`, doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
		return
	}
	doc.ID, _ = result.LastInsertId()

	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

// ListDocuments is the handler for GET /v1/applications/:id/documents.
func (h *Handlers) ListDocuments(c *gin.Context) {
	appID, ok := paramID(c, "id")
	if !ok {
		return
	}
	app, ok := h.applicationFor(c, appID)
	if !ok {
		return
	}

	documents := []models.Document{}
	if err := h.DB.SelectContext(c.Request.Context(), &documents,
		"SELECT "+documentColumns+" FROM documents WHERE application_id = ? ORDER BY created_at", app.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": documents})
}

// ownedDocument loads a document together with its parent application,
// scoped to the current user.
func (h *Handlers) ownedDocument(c *gin.Context) (*models.Document, *models.Application, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, nil, false
	}
	var doc models.Document
	err := h.DB.GetContext(c.Request.Context(), &doc, `
		SELECT d.id, d.application_id, d.kind, d.title, d.content, d.file_url, d.word_count, d.created_at, d.updated_at
		FROM documents d
		JOIN applications a ON a.id = d.application_id
		WHERE d.id = ? AND a.user_id = ?`, id, currentUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return nil, nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, nil, false
	}
	app, ok := h.applicationFor(c, doc.ApplicationID)
	if !ok {
		return nil, nil, false
	}
	return &doc, app, true
}

type UpdateDocumentInput struct {
	Kind    *string `json:"kind" binding:"omitempty,oneof=PERSONAL_STATEMENT CV LOR MSPE OTHER"`
	Title   *string `json:"title" binding:"omitempty,min=1,max=255"`
	Content *string `json:"content"`
	FileURL *string `json:"fileUrl" binding:"omitempty,url"`
}

// UpdateDocument is the handler for PATCH /v1/documents/:id.
func (h *Handlers) UpdateDocument(c *gin.Context) {
	// 1. --- Bind JSON ---
	var input UpdateDocumentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Load & Check State ---
	doc, app, ok := h.ownedDocument(c)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}

	// 3. --- Apply Changes ---
	if input.Kind != nil {
		doc.Kind = *input.Kind
	}
	if input.Title != nil {
		doc.Title = strings.TrimSpace(*input.Title)
	}
	if input.Content != nil {
		doc.Content = input.Content
		doc.WordCount = models.WordCount(*input.Content)
	}
	if input.FileURL != nil {
		doc.FileURL = input.FileURL
	}
	doc.UpdatedAt = h.now()

	_, err := h.DB.NamedExecContext(c.Request.Context(), `
		UPDATE documents
		SET kind = :kind, title = :title, content = :content, file_url = :file_url,
		    word_count = :word_count, updated_at = :updated_at
		WHERE id = :id`, doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// DeleteDocument is the handler for DELETE /v1/documents/:id.
func (h *Handlers) DeleteDocument(c *gin.Context) {
	doc, app, ok := h.ownedDocument(c)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}
	if _, err := h.DB.ExecContext(c.Request.Context(), "DELETE FROM documents WHERE id = ?", doc.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}
