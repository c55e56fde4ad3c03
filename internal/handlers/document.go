// internal/handlers/document.go
package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/utils"
)

type DocumentHandler struct {
	documentService *services.DocumentService
	maxUpload       int64
}

func NewDocumentHandler(documentService *services.DocumentService, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		maxUpload:       maxUpload,
	}
}

// POST /applications/:id/documents
func (h *DocumentHandler) Submit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	applicationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.SubmitDocumentRequest
	if !bindJSON(c, &req) {
		return
	}

	document, err := h.documentService.SubmitDocument(c.Request.Context(), utils.GetActorID(c), applicationID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyDocumentSubmitted),
		"document": document,
	})
}

// POST /applications/:id/documents/upload
func (h *DocumentHandler) Upload(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	applicationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	kind := c.PostForm("kind")
	if kind == "" {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "kind"), nil)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileRequired), err.Error())
		return
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", i18n.T(lang, i18n.KeyFileTooLarge), gin.H{"max_bytes": h.maxUpload})
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileRequired), err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileRequired), err.Error())
		return
	}

	document, err := h.documentService.UploadDocument(c.Request.Context(), utils.GetActorID(c), applicationID, kind, content)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyDocumentSubmitted),
		"document": document,
	})
}

// GET /applications/:id/documents
func (h *DocumentHandler) ListForApplication(c *gin.Context) {
	applicationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	documents, err := h.documentService.ListDocuments(c.Request.Context(), applicationID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"documents": documents,
	})
}

// GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	document, err := h.documentService.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"document": document,
	})
}

// GET /documents/:id/content
func (h *DocumentHandler) Content(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	document, content, err := h.documentService.DocumentContent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := document.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s-%s"`, document.Kind, document.ID))
	c.Data(http.StatusOK, contentType, content)
}

// POST /documents/:id/review
func (h *DocumentHandler) Review(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.ReviewDocumentRequest
	if !bindJSON(c, &req) {
		return
	}

	document, err := h.documentService.ReviewDocument(c.Request.Context(), utils.GetActorID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"document": document,
	})
}
