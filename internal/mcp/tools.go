package mcp

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/service"
)

const maxListLimit = 200

type listGuidelinesInput struct{}

type guidelineOutput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tiers       []string `json:"tiers"`
	Codes       []string `json:"codes"`
}

type listGuidelinesOutput struct {
	Guidelines []guidelineOutput `json:"guidelines"`
}

type previewScoreInput struct {
	Guideline string   `json:"guideline" jsonschema:"guideline name, see list_guidelines"`
	Tokens    []string `json:"tokens" jsonschema:"evidence tokens like OS1_S1, BS1_NA or OP1_SU|SBP1_NA"`
}

type previewScoreOutput struct {
	Score     int      `json:"score"`
	Tier      string   `json:"tier"`
	Warnings  []string `json:"warnings,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

type summaryInput struct {
	ClassificationID int64 `json:"classification_id" jsonschema:"classification identifier"`
}

type summaryOutput struct {
	ClassificationID int64    `json:"classification_id"`
	Guideline        string   `json:"guideline"`
	Status           string   `json:"status"`
	CurrentCheck     int      `json:"current_check"`
	Assignee         string   `json:"assignee,omitempty"`
	CurrentScore     *int     `json:"current_score,omitempty"`
	CurrentClass     string   `json:"current_class,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	FinalClass       string   `json:"final_class,omitempty"`
	FinalScore       *int     `json:"final_score,omitempty"`
	Complete         bool     `json:"complete"`
}

type listClassificationsInput struct {
	Status    string `json:"status,omitempty" jsonschema:"pending (default) or complete"`
	Guideline string `json:"guideline,omitempty" jsonschema:"only classifications under this guideline"`
	Limit     int    `json:"limit,omitempty" jsonschema:"page size (default 50, max 200)"`
	Offset    int    `json:"offset,omitempty" jsonschema:"rows to skip"`
}

type classificationRow struct {
	ID         int64  `json:"id"`
	HGVSc      string `json:"hgvs_c"`
	Gene       string `json:"gene,omitempty"`
	Guideline  string `json:"guideline"`
	Status     string `json:"status"`
	Assignee   string `json:"assignee,omitempty"`
	FinalClass string `json:"final_class,omitempty"`
	Source     string `json:"source"`
	SampleID   string `json:"sample_id,omitempty"`
}

type listClassificationsOutput struct {
	Classifications []classificationRow `json:"classifications"`
}

func (s *Server) handleListGuidelines(_ context.Context, _ *sdkmcp.CallToolRequest, _ listGuidelinesInput) (*sdkmcp.CallToolResult, listGuidelinesOutput, error) {
	out := listGuidelinesOutput{Guidelines: []guidelineOutput{}}
	for _, g := range s.catalogs.Current().Guidelines() {
		info := guidelineOutput{
			Name:        g.Name,
			Description: g.Description,
			Tiers:       []string{g.DefaultTier},
			Codes:       g.Codes(),
		}
		for _, t := range g.Thresholds {
			info.Tiers = append(info.Tiers, t.Tier)
		}
		out.Guidelines = append(out.Guidelines, info)
	}
	return nil, out, nil
}

func (s *Server) handlePreviewScore(_ context.Context, _ *sdkmcp.CallToolRequest, in previewScoreInput) (*sdkmcp.CallToolResult, previewScoreOutput, error) {
	preview, err := service.PreviewScore(s.catalogs.Current(), in.Guideline, in.Tokens)
	if err != nil {
		return nil, previewScoreOutput{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"guideline": in.Guideline,
		"score":     preview.Score,
		"tier":      preview.Tier,
	}).Debug("MCP score preview")
	return nil, previewScoreOutput{
		Score:     preview.Score,
		Tier:      preview.Tier,
		Warnings:  preview.Warnings,
		Conflicts: preview.Conflicts,
	}, nil
}

func (s *Server) handleGetSummary(ctx context.Context, _ *sdkmcp.CallToolRequest, in summaryInput) (*sdkmcp.CallToolResult, summaryOutput, error) {
	if in.ClassificationID <= 0 {
		return nil, summaryOutput{}, fmt.Errorf("classification_id must be positive")
	}
	sum, err := s.service.Summary(ctx, in.ClassificationID)
	if err != nil {
		return nil, summaryOutput{}, err
	}
	return nil, summaryOutput(*sum), nil
}

func (s *Server) handleListClassifications(ctx context.Context, _ *sdkmcp.CallToolRequest, in listClassificationsInput) (*sdkmcp.CallToolResult, listClassificationsOutput, error) {
	status := domain.WorklistStatus(in.Status)
	if status == "" {
		status = domain.PENDING_WORKLIST
	}
	limit := in.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = 50
	}

	entries, err := s.service.Worklist(ctx, status, in.Guideline, limit, in.Offset)
	if err != nil {
		return nil, listClassificationsOutput{}, err
	}
	out := listClassificationsOutput{Classifications: make([]classificationRow, 0, len(entries))}
	for _, e := range entries {
		out.Classifications = append(out.Classifications, classificationRow{
			ID:         e.Classification.ID,
			HGVSc:      e.Variant.HGVSc,
			Gene:       e.Variant.Gene,
			Guideline:  e.Classification.Guideline,
			Status:     e.Status,
			Assignee:   e.Assignee,
			FinalClass: e.Classification.FinalClass,
			Source:     string(e.Sample.Source),
			SampleID:   e.Sample.SampleID,
		})
	}
	return nil, out, nil
}
