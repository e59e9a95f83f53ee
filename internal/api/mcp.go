package api

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/library"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

// mcpPreviewChars caps note content in list_notes results.
const mcpPreviewChars = 200

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Library *library.Library
}

// NewMCPServer creates an MCP server exposing the library and notes.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pdflearn",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pdflearn: a local PDF library with per-page study notes."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List study notes saved for a PDF, optionally for one page."),
			mcp.WithString("document", mcp.Description("PDF filename"), mcp.Required()),
			mcp.WithNumber("page", mcp.Description("Only notes for this page")),
		),
		mcpListNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("get_page_text",
			mcp.WithDescription("Return the extracted text of one page of a PDF in the library."),
			mcp.WithString("document", mcp.Description("PDF filename"), mcp.Required()),
			mcp.WithNumber("page", mcp.Description("1-based page number"), mcp.Required()),
		),
		mcpGetPageText(deps),
	)

	s.AddTool(
		mcp.NewTool("save_note",
			mcp.WithDescription("Save a study note against a page of a PDF."),
			mcp.WithString("document", mcp.Description("PDF filename"), mcp.Required()),
			mcp.WithNumber("page", mcp.Description("1-based page number"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Note title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Note body")),
		),
		mcpSaveNote(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"library://documents",
			"PDF Library",
			mcp.WithResourceDescription("PDFs in the library with page counts and reading progress"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpListNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := req.RequireString("document")
		if err != nil {
			return mcpError("document is required"), nil
		}
		page := req.GetInt("page", 0)
		if page < 0 {
			page = 0
		}

		notes, err := deps.Store.ListNotes(doc, page)
		if err != nil {
			return mcpError(fmt.Sprintf("listing notes failed: %v", err)), nil
		}

		type noteResult struct {
			ID        string `json:"id"`
			Page      int    `json:"page"`
			Title     string `json:"title"`
			Preview   string `json:"preview"`
			CreatedAt string `json:"created_at"`
		}
		results := make([]noteResult, len(notes))
		for i, n := range notes {
			preview := n.Content
			if utf8.RuneCountInString(preview) > mcpPreviewChars {
				preview = string([]rune(preview)[:mcpPreviewChars]) + "..."
			}
			results[i] = noteResult{
				ID:        n.ID,
				Page:      n.PageNumber,
				Title:     n.Title,
				Preview:   preview,
				CreatedAt: n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPageText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := req.RequireString("document")
		if err != nil {
			return mcpError("document is required"), nil
		}
		page, err := req.RequireInt("page")
		if err != nil {
			return mcpError("page is required"), nil
		}

		text, err := deps.Library.PageText(doc, page)
		if err != nil {
			return mcpError(fmt.Sprintf("extracting page %d of %s: %v", page, doc, err)), nil
		}
		if text == "" {
			return mcpText("(no extractable text on this page)"), nil
		}
		return mcpText(text), nil
	}
}

func mcpSaveNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := req.RequireString("document")
		if err != nil {
			return mcpError("document is required"), nil
		}
		page, err := req.RequireInt("page")
		if err != nil {
			return mcpError("page is required"), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		content := req.GetString("content", "")

		note, err := deps.Store.CreateNote(doc, page, title, content)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved note %s on page %d of %s", note.ID, note.PageNumber, note.DocumentRef)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos, err := deps.Library.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		progress, err := deps.Store.ListProgress()
		if err != nil {
			return nil, fmt.Errorf("failed to list progress: %w", err)
		}
		lastPage := make(map[string]int, len(progress))
		for _, p := range progress {
			lastPage[p.DocumentRef] = p.LastPage
		}

		type documentSummary struct {
			Filename string `json:"filename"`
			Title    string `json:"title"`
			Pages    int    `json:"num_pages"`
			LastPage int    `json:"last_page,omitempty"`
		}
		docs := make([]documentSummary, len(infos))
		for i, info := range infos {
			docs[i] = documentSummary{
				Filename: info.Filename,
				Title:    info.Title,
				Pages:    info.NumPages,
				LastPage: lastPage[info.Filename],
			}
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
