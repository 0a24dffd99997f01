// Package mcp exposes scoring and worklist queries to MCP clients.
package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/service"
)

const (
	defaultServerName    = "svd-classify"
	defaultServerVersion = "dev"
)

// Server wraps the MCP SDK server. Tools are read-only: reviewers sign off
// through the HTTP API, never through an assistant.
type Server struct {
	MCPServer *sdkmcp.Server

	service  *service.ClassificationService
	catalogs service.CatalogProvider
	logger   *logrus.Logger
}

// NewServer creates an MCP server with every tool registered.
func NewServer(cfg domain.MCPConfig, svc *service.ClassificationService, catalogs service.CatalogProvider, logger *logrus.Logger) *Server {
	name, version := cfg.ServerName, cfg.ServerVersion
	if name == "" {
		name = defaultServerName
	}
	if version == "" {
		version = defaultServerVersion
	}

	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: name, Version: version}, nil),
		service:   svc,
		catalogs:  catalogs,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Run serves MCP over transport until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	s.logger.Info("Starting MCP server")
	return s.MCPServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_guidelines",
		Description: "List the loaded classification guidelines with their tiers and evidence codes.",
	}, s.handleListGuidelines)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "preview_score",
		Description: "Score evidence tokens such as OS1_S1 or OP1_SU|SBP1_NA against a guideline without saving anything.",
	}, s.handlePreviewScore)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_classification_summary",
		Description: "Get the status, current score and final class of a classification.",
	}, s.handleGetSummary)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_classifications",
		Description: "List pending or complete classifications, optionally for one guideline.",
	}, s.handleListClassifications)

	s.logger.WithField("tool_count", 4).Debug("Registered MCP tools")
}
