package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/flcm/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

const instructions = `flcm stores pipeline documents as Markdown files with a header block.
Each run produces a content-brief, then a knowledge-synthesis, a content-draft
and one platform-adaptation per platform; every document references the id of
the one before it. Use document_query to find documents, document_get to read
one, document_backlinks to walk the lineage forward and document_validate to
check text before saving it.`

const shutdownTimeout = 5 * time.Second

// Server exposes the document store to MCP hosts.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(
			&mcp.Implementation{Name: "flcm", Version: Version},
			&mcp.ServerOptions{Instructions: instructions},
		),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until the context is cancelled or the host hangs up.
func (s *Server) Run(ctx context.Context) error {
	logger.Debug("mcp: serving on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until the context is
// cancelled, then shuts down.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped <- httpServer.Shutdown(shutdownCtx)
	}()

	logger.Debug("mcp: serving on http://%s", addr)
	err := httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-stopped; err != nil {
		logger.Warn("mcp: shutdown: %v", err)
	}
	return nil
}
