package analyses

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"clarify-backend/internal/domains"
	"clarify-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.submitAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getStatus)
	rg.GET("/analyses/:id/intents", h.getIntentOptions)
	rg.POST("/analyses/:id/intent", h.submitIntent)
	rg.GET("/analyses/:id/result", h.getResult)
	rg.POST("/analyses/:id/cancel", h.cancelAnalysis)
	rg.GET("/analyses/:id/findings/:flagId", h.getFinding)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
}

func (h *Handler) submitAnalysis(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "multipart form with at least one PDF is required", nil)
		return
	}
	fileHeaders := form.File["documents"]
	if len(fileHeaders) == 0 {
		fileHeaders = form.File["document"]
	}
	if len(fileHeaders) == 0 {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "at least one document is required", nil)
		return
	}

	files := make([]UploadFile, 0, len(fileHeaders))
	closers := make([]func() error, 0, len(fileHeaders))
	defer func() {
		for _, close := range closers {
			_ = close()
		}
	}()
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "could not read uploaded file", nil)
			return
		}
		closers = append(closers, f.Close)
		files = append(files, UploadFile{FileName: fh.Filename, Reader: f})
	}

	language := strings.TrimSpace(c.PostForm("language"))

	analysis, err := h.Svc.Submit(c.Request.Context(), files, language)
	if err != nil {
		switch {
		case errors.Is(err, ErrJobQueueNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, ErrorCodeInternal, "analysis processing is currently unavailable", nil)
		case errors.Is(err, ErrNoDocuments),
			errors.Is(err, ErrTooManyDocuments),
			errors.Is(err, ErrUnsupportedFileType):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to submit analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId":  analysis.ID,
		"currentStep": analysis.CurrentStep,
		"progress":    Progress(analysis.CurrentStep),
	})
}

func (h *Handler) getStatus(c *gin.Context) {
	analysis, ok := h.loadAnalysis(c)
	if !ok {
		return
	}
	resp := gin.H{
		"id":          analysis.ID,
		"currentStep": analysis.CurrentStep,
		"progress":    Progress(analysis.CurrentStep),
		"message":     StepMessage(analysis.CurrentStep),
		"documents":   analysis.DocumentNames,
		"createdAt":   analysis.CreatedAt,
		"updatedAt":   analysis.UpdatedAt,
	}
	if analysis.Domain != "" {
		resp["domain"] = analysis.Domain
	}
	if analysis.CurrentStep == StepError {
		resp["error"] = analysis.ErrorMessage
	}
	respond.OK(c, resp)
}

func (h *Handler) getIntentOptions(c *gin.Context) {
	analysisID := c.Param("id")
	choices, err := h.Svc.IntentOptions(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "analysis not found", nil)
		case errors.Is(err, ErrNotAwaitingIntent):
			respond.Error(c, http.StatusConflict, ErrorCodeValidation, "analysis is not awaiting intent selection", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch intent options", nil)
		}
		return
	}
	respond.OK(c, choices)
}

type submitIntentRequest struct {
	Domain       string `json:"domain"`
	Intent       string `json:"intent"`
	CustomIntent string `json:"customIntent"`
}

func (h *Handler) submitIntent(c *gin.Context) {
	analysisID := c.Param("id")
	var req submitIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}
	if req.Intent == "" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "intent is required", nil)
		return
	}

	analysis, err := h.Svc.SubmitIntent(c.Request.Context(), analysisID, req.Domain, req.Intent, req.CustomIntent)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "analysis not found", nil)
		case errors.Is(err, ErrNotAwaitingIntent):
			respond.Error(c, http.StatusConflict, ErrorCodeValidation, "analysis is not awaiting intent selection", nil)
		case errors.Is(err, domains.ErrInvalidIntent):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "unknown intent for this domain", nil)
		case errors.Is(err, domains.ErrMissingCustomIntent):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "custom intent text is required for the \"other\" option", nil)
		case errors.Is(err, ErrJobQueueNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, ErrorCodeInternal, "analysis processing is currently unavailable", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to submit intent", nil)
		}
		return
	}

	respond.OK(c, gin.H{
		"analysisId":  analysis.ID,
		"currentStep": analysis.CurrentStep,
		"progress":    Progress(analysis.CurrentStep),
	})
}

func (h *Handler) getResult(c *gin.Context) {
	analysisID := c.Param("id")
	analysis, ready, err := h.Svc.Result(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch result", nil)
		}
		return
	}
	if !ready {
		respond.JSON(c, http.StatusOK, gin.H{
			"id":          analysis.ID,
			"currentStep": analysis.CurrentStep,
			"progress":    Progress(analysis.CurrentStep),
			"message":     StepMessage(analysis.CurrentStep),
		})
		return
	}
	respond.OK(c, analysis)
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	analysis, err := h.Svc.Cancel(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "analysis not found", nil)
		case errors.Is(err, ErrAlreadyTerminal):
			respond.Error(c, http.StatusConflict, ErrorCodeValidation, "analysis has already finished", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to cancel analysis", nil)
		}
		return
	}
	respond.OK(c, gin.H{
		"analysisId":  analysis.ID,
		"currentStep": analysis.CurrentStep,
	})
}

func (h *Handler) getFinding(c *gin.Context) {
	analysisID := c.Param("id")
	flagID := c.Param("flagId")
	flag, err := h.Svc.Finding(c.Request.Context(), analysisID, flagID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "finding not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch finding", nil)
		}
		return
	}
	respond.OK(c, flag)
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	if err := h.Svc.Delete(c.Request.Context(), analysisID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to delete analysis", nil)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	list, err := h.Svc.History(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to list analyses", nil)
		return
	}

	resp := make([]gin.H, 0, len(list))
	for _, analysis := range list {
		item := gin.H{
			"id":          analysis.ID,
			"documents":   analysis.DocumentNames,
			"currentStep": analysis.CurrentStep,
			"progress":    Progress(analysis.CurrentStep),
			"createdAt":   analysis.CreatedAt,
		}
		if analysis.Domain != "" {
			item["domain"] = analysis.Domain
		}
		if analysis.OverallScore != nil {
			item["overallScore"] = *analysis.OverallScore
		}
		resp = append(resp, item)
	}
	respond.OK(c, gin.H{"analyses": resp, "limit": limit, "offset": offset})
}

func (h *Handler) loadAnalysis(c *gin.Context) (Analysis, bool) {
	analysisID := c.Param("id")
	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeValidation, "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch analysis", nil)
		}
		return Analysis{}, false
	}
	return analysis, true
}
