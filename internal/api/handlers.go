package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/middleware"
	"github.com/svd-classify/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type createRequest struct {
	Guideline string         `json:"guideline" binding:"required"`
	Variant   domain.Variant `json:"variant"`
	Source    *sourceRequest `json:"source"`
}

type sourceRequest struct {
	Kind domain.VariantSourceKind `json:"kind"`
	Data json.RawMessage          `json:"data"`
}

type codesRequest struct {
	Tokens []string `json:"tokens"`
}

type previewRequest struct {
	Guideline string   `json:"guideline" binding:"required"`
	Tokens    []string `json:"tokens"`
}

type previousRequest struct {
	Choice string `json:"choice" binding:"required"`
}

type classificationRequest struct {
	Override string `json:"override"`
}

type signoffRequest struct {
	NextStep string `json:"next_step" binding:"required"`
}

type guidelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tiers       []string `json:"tiers"`
}

type guidelineDetail struct {
	*domain.Guideline
	Order []catalog.CategoryCodes `json:"order"`
}

func (s *Server) handleListGuidelines(c *gin.Context) {
	c.JSON(http.StatusOK, listGuidelines(s.catalogs.Current()))
}

func listGuidelines(cat *catalog.Catalog) []guidelineInfo {
	out := []guidelineInfo{}
	for _, g := range cat.Guidelines() {
		info := guidelineInfo{Name: g.Name, Description: g.Description, Tiers: []string{g.DefaultTier}}
		for _, t := range g.Thresholds {
			info.Tiers = append(info.Tiers, t.Tier)
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) handleGetGuideline(c *gin.Context) {
	g, err := s.catalogs.Current().Guideline(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	order, err := catalog.OrderInfo(g)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, guidelineDetail{Guideline: g, Order: order})
}

func (s *Server) handleReloadGuidelines(c *gin.Context) {
	cat, err := s.catalogs.Reload()
	if err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Guideline reload failed", err.Error())
		return
	}
	broadcast := false
	if s.publisher != nil {
		if err := s.publisher.Publish(c.Request.Context()); err != nil {
			s.logger.WithError(err).Warn("Failed to broadcast guideline reload")
		} else {
			broadcast = true
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"guidelines": listGuidelines(cat),
		"loaded_at":  cat.LoadedAt(),
		"broadcast":  broadcast,
	})
}

func (s *Server) handlePreview(c *gin.Context) {
	var req previewRequest
	if !s.bind(c, &req) {
		return
	}
	preview, err := s.service.PreviewScore(req.Guideline, req.Tokens)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if !s.bind(c, &req) {
		return
	}
	params := service.CreateClassificationParams{
		Variant:   req.Variant,
		Guideline: req.Guideline,
		Actor:     reviewer(c),
	}
	params.Variant.ID = 0
	if req.Source != nil {
		src, err := domain.DecodeVariantSource(req.Source.Kind, req.Source.Data)
		if err != nil {
			s.fail(c, err)
			return
		}
		params.Source = src
	}

	created, err := s.service.CreateClassification(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleWorklist(c *gin.Context) {
	status := domain.WorklistStatus(c.DefaultQuery("status", string(domain.PENDING_WORKLIST)))
	limit, ok := s.queryInt(c, "limit", defaultPageSize)
	if !ok {
		return
	}
	offset, ok := s.queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	entries, err := s.service.Worklist(c.Request.Context(), status, c.Query("guideline"), limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries), "limit": limit, "offset": offset})
}

func (s *Server) handleOpen(c *gin.Context) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	form, err := s.service.Open(c.Request.Context(), id, reviewer(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (s *Server) handleSummary(c *gin.Context) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	summary, err := s.service.Summary(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleUpdateCodes(c *gin.Context) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	var req codesRequest
	if !s.bind(c, &req) {
		return
	}
	outcome, summary, err := s.service.UpdateCodes(c.Request.Context(), id, reviewer(c), req.Tokens)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !outcome.Success {
		s.rejected(c, outcome)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleCompleteInfo(c *gin.Context) {
	s.transition(c, s.service.CompleteInfoTab)
}

func (s *Server) handleReopenInfo(c *gin.Context) {
	s.transition(c, s.service.ReopenInfoTab)
}

func (s *Server) handleCompletePrevious(c *gin.Context) {
	var req previousRequest
	if !s.bind(c, &req) {
		return
	}
	choice, err := domain.ParsePreviousChoice(req.Choice)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.transition(c, func(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
		return s.service.CompletePreviousClassTab(ctx, id, actor, choice)
	})
}

func (s *Server) handleReopenPrevious(c *gin.Context) {
	s.transition(c, s.service.ReopenPreviousClassTab)
}

func (s *Server) handleCompleteClassification(c *gin.Context) {
	var req classificationRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}
	s.transition(c, func(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
		return s.service.CompleteClassificationTab(ctx, id, actor, req.Override)
	})
}

func (s *Server) handleReopenClassification(c *gin.Context) {
	s.transition(c, s.service.ReopenClassificationTab)
}

func (s *Server) handleSignoff(c *gin.Context) {
	var req signoffRequest
	if !s.bind(c, &req) {
		return
	}
	next, err := domain.ParseNextStep(req.NextStep)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.transition(c, func(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
		return s.service.Signoff(ctx, id, actor, next)
	})
}

func (s *Server) handleReopenCheck(c *gin.Context) {
	s.transition(c, s.service.ReopenCheck)
}

func (s *Server) handlePreviousChoices(c *gin.Context) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	choices, err := s.service.PreviousChoices(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, choices)
}

func (s *Server) handleDisagreements(c *gin.Context) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	d, err := s.service.Disagreements(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disagreement": d, "agrees": d.Agrees()})
}

func (s *Server) handleAuditTrail(c *gin.Context) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	events, err := s.service.AuditTrail(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// transition runs a workflow operation that answers with an Outcome.
func (s *Server) transition(c *gin.Context, op func(ctx context.Context, id int64, actor string) (domain.Outcome, error)) {
	id, ok := s.classificationID(c)
	if !ok {
		return
	}
	outcome, err := op(c.Request.Context(), id, reviewer(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !outcome.Success {
		s.rejected(c, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) rejected(c *gin.Context, outcome domain.Outcome) {
	s.abort(c, http.StatusUnprocessableEntity, domain.ErrCodePreconditionFailed, outcome.Message, "")
}

// fail maps a service error to its HTTP status.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		perm *domain.PermissionError
		verr *domain.ValidationError
	)
	switch {
	case errors.As(err, &perm):
		s.abort(c, http.StatusForbidden, domain.ErrCodePermissionDenied, "Check is assigned to another reviewer", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.abort(c, http.StatusNotFound, domain.ErrCodeNotFound, "Resource not found", err.Error())
	case errors.As(err, &verr), isLookupError(err):
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.abort(c, http.StatusGatewayTimeout, domain.ErrCodeDatabaseError, "Request timed out", "")
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"path":           c.FullPath(),
		}).WithError(err).Error("Request failed")
		s.abort(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "Internal server error", "")
	}
}

func isLookupError(err error) bool {
	for _, target := range []error{
		domain.ErrUnknownGuideline,
		domain.ErrUnknownCode,
		domain.ErrUnknownStrength,
		domain.ErrInvalidToken,
		domain.ErrInvalidPolarity,
		domain.ErrInvalidNextStep,
		domain.ErrInvalidChoice,
		domain.ErrInvalidVariantSrc,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) abort(c *gin.Context, status int, code, message, details string) {
	middleware.Abort(c, status, code, message, details)
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid request body", err.Error())
		return false
	}
	return true
}

func (s *Server) classificationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid classification id", c.Param("id"))
		return 0, false
	}
	return id, true
}

func (s *Server) queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid "+key, raw)
		return 0, false
	}
	return v, true
}

func reviewer(c *gin.Context) string {
	return c.GetString(middleware.ReviewerKey)
}
