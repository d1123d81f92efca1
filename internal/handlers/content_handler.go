package handlers

import (
	"net/http"
	"strconv"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ContentHandler handles study material and RAG query HTTP requests
type ContentHandler struct {
	contentService services.ContentServiceInterface
	logger         *observability.Logger
}

// NewContentHandler creates a new ContentHandler
func NewContentHandler(contentService services.ContentServiceInterface, logger *observability.Logger) *ContentHandler {
	return &ContentHandler{
		contentService: contentService,
		logger:         logger,
	}
}

// Upload stores new study material (teacher or admin only). Indexing happens
// asynchronously in the worker.
func (h *ContentHandler) Upload(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_upload")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.UploadContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(
		observability.AttributeSubject(req.Subject),
		attribute.Int("content.body_bytes", len(req.Body)),
	)

	item, err := h.contentService.Upload(ctx, userID, &req)
	if err != nil {
		h.logger.Error(ctx, "Content upload failed", err, map[string]interface{}{
			"user_id": userID,
			"subject": req.Subject,
			"title":   req.Title,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// List lists study material, optionally filtered by subject and folder
func (h *ContentHandler) List(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_list")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	subject := c.Query("subject")
	folder := c.Query("folder")
	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	items, err := h.contentService.List(ctx, subject, folder, pageSize, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "items", items, gin.H{"page": page, "page_size": pageSize}, nil)
}

// Get returns one content item
func (h *ContentHandler) Get(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_get")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	contentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "content id must be an integer"))
		return
	}
	span.SetAttributes(observability.AttributeContentID(contentID))

	item, err := h.contentService.Get(ctx, contentID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// Update replaces a content item's material and queues it for reindexing
// (teacher or admin only)
func (h *ContentHandler) Update(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_update")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	contentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "content id must be an integer"))
		return
	}
	span.SetAttributes(observability.AttributeContentID(contentID))

	var req models.UploadContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.contentService.Update(ctx, contentID, &req)
	if err != nil {
		h.logger.Error(ctx, "Content update failed", err, map[string]interface{}{
			"user_id":    userID,
			"content_id": contentID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// Delete removes a content item and its index entries (teacher or admin only)
func (h *ContentHandler) Delete(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_delete")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	contentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "content id must be an integer"))
		return
	}
	span.SetAttributes(observability.AttributeContentID(contentID))

	if err := h.contentService.Delete(ctx, contentID); err != nil {
		h.logger.Error(ctx, "Content delete failed", err, map[string]interface{}{
			"user_id":    userID,
			"content_id": contentID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListFolders lists the folders under a subject
func (h *ContentHandler) ListFolders(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_list_folders")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	subject := c.Query("subject")
	span.SetAttributes(observability.AttributeSubject(subject))

	folders, err := h.contentService.ListFolders(ctx, subject)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

// Reindex forces synchronous reindexing of one content item (teacher or
// admin only)
func (h *ContentHandler) Reindex(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_reindex")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	contentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "content id must be an integer"))
		return
	}
	span.SetAttributes(observability.AttributeContentID(contentID))

	if err := h.contentService.IndexContent(ctx, contentID); err != nil {
		h.logger.Error(ctx, "Content reindex failed", err, map[string]interface{}{
			"user_id":    userID,
			"content_id": contentID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Query answers a question grounded on the indexed material for a subject
func (h *ContentHandler) Query(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "content_query")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.ContentQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(observability.AttributeSubject(req.Subject))

	answer, err := h.contentService.Query(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Content query failed", err, map[string]interface{}{
			"user_id": userID,
			"subject": req.Subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}
