// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes postlock tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/postlock/internal/postservice"
	"github.com/starford/postlock/internal/shell"
)

const formatURI = "postlock://locked-link-format"

// Server wraps the MCP server with postlock tools.
type Server struct {
	mcp *server.MCPServer
	svc *postservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *postservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"postlock",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("lock_text",
		mcp.WithDescription("Lock the outbound links of a Markdown text. Nothing is written to disk."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown body")),
	), s.lockText)

	s.mcp.AddTool(mcp.NewTool("unlock_link",
		mcp.WithDescription("Decrypt a locked link payload back to its URL."),
		mcp.WithString("payload", mcp.Required(), mcp.Description("Payload, with or without the encrypted: prefix")),
	), s.unlockLink)

	s.mcp.AddTool(mcp.NewTool("run_build",
		mcp.WithDescription("Lock links in every post and copy post images to the public directory. "+
			"Returns the build report."),
		mcp.WithBoolean("force", mcp.Description("Re-process posts the journal marks as unchanged")),
		mcp.WithBoolean("images", mcp.Description("Copy images too (default true)")),
	), s.runBuild)

	s.mcp.AddTool(mcp.NewTool("list_journal",
		mcp.WithDescription("List the per-post outcomes recorded by past builds."),
		mcp.WithString("outcome", mcp.Description("Optional filter: locked, unchanged, skipped or failed")),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 50)")),
	), s.listJournal)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent build runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Max runs (default 20)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Run a configured command preset (e.g. pull, add, commit, push, install, build) "+
			"in the project directory and return its output."),
		mcp.WithString("preset", mcp.Required(), mcp.Description("Preset name")),
		mcp.WithArray("args", mcp.WithStringItems(), mcp.Description("Positional arguments, e.g. the commit message")),
	), s.runCommand)

	s.mcp.AddTool(mcp.NewTool("import_bundle",
		mcp.WithDescription("Import a zipped article bundle into a new timestamped post directory "+
			"and keep a backup copy."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/zip;base64,... URI")),
	), s.importBundle)

	s.mcp.AddTool(mcp.NewTool("get_link_format",
		mcp.WithDescription("Returns the locked link format. Read this before editing posts that contain locked links."),
	), s.getLinkFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Locked Link Format",
			mcp.WithResourceDescription("How locked links are written in posts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) lockText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _, err := s.svc.LockText(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) unlockLink(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := req.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := s.svc.Unlock(payload)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(u), nil
}

func (s *Server) runBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Build(ctx, postservice.BuildRequest{
		Force:  req.GetBool("force", false),
		Images: req.GetBool("images", true),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) listJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, total, err := s.svc.ListFiles(ctx, req.GetString("outcome", ""), req.GetInt("limit", 50), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"files": files, "total": total})
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.ListRuns(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(runs)
}

func (s *Server) runCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preset, err := req.RequireString("preset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Exec(ctx, preset, req.GetStringSlice("args", nil), nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	for _, l := range res.Lines {
		if l.Stream == shell.Stderr {
			b.WriteString("! ")
		}
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "exit code: %d", res.ExitCode)
	if res.ExitCode != 0 {
		return mcp.NewToolResultError(b.String()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getLinkFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LockedLinkFormat), nil
}

func (s *Server) readLinkFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     LockedLinkFormat,
		},
	}, nil
}
