// Package toolregistry implements the ToolRegistry (spec §4.7): a
// dispatch table from tool name and parameters to a backing component,
// and the authoritative source of tool schemas surfaced to the model.
// Grounded on the teacher's index/mcp_server.go: mcp-go's schema
// builder types are reused purely as a typed schema DSL (mcp.NewTool,
// mcp.WithString, mcp.WithNumber, mcp.WithDescription) to describe each
// tool, with no MCP transport running in this process — the transport
// itself lives in the separate cmd/neurofind-mcp bridge.
package toolregistry

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/manole-ai/neurofind/pkg/searcher"
	"github.com/manole-ai/neurofind/pkg/toolbox"
)

// Tool names, matching spec §4.7's defined tool set exactly.
const (
	ToolSemanticSearch = "semantic_search"
	ToolCountFiles     = "count_files"
	ToolListFiles      = "list_files"
	ToolFileMetadata   = "file_metadata"
	ToolGrepFiles      = "grep_files"
	ToolDirectoryTree  = "directory_tree"
	ToolFolderStats    = "folder_stats"
	ToolDiskUsage      = "disk_usage"
	ToolRespond        = "respond"
)

// Handler executes one tool call and returns its text result plus the
// source filenames it surfaced (only semantic_search ever returns a
// non-empty source list, per spec §4.7).
type Handler func(ctx context.Context, params map[string]any) (text string, sources []string)

// Registry maps tool name to handler and carries the tool schemas
// surfaced to the Agent's system prompt.
type Registry struct {
	handlers map[string]Handler
	schemas  []mcp.Tool
}

// New builds the full ToolRegistry bound to one directory's Searcher and
// ToolBox.
func New(s *searcher.Searcher, tb *toolbox.ToolBox) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}

	r.register(semanticSearchSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		query, _ := params["query"].(string)
		topK := intParam(params, "top_k", 5)
		if topK < 1 {
			topK = 1
		}
		if topK > 10 {
			topK = 10
		}
		return s.SearchAndExtract(ctx, query, topK)
	})

	r.register(countFilesSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		ext, _ := params["extension"].(string)
		out, err := tb.CountFiles(ext, toolbox.TimeAny)
		return resultOrError(out, err)
	})

	r.register(listFilesSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		ext, _ := params["extension"].(string)
		limit := intParam(params, "limit", 10)
		sortBy := toolbox.SortBy(stringParam(params, "sort_by", "date"))
		out, err := tb.ListRecentFiles(ext, toolbox.TimeAny, limit, sortBy)
		return resultOrError(out, err)
	})

	r.register(fileMetadataSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		hint, _ := params["name_hint"].(string)
		out, err := tb.GetFileMetadata(hint)
		return resultOrError(out, err)
	})

	r.register(grepFilesSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		pattern, _ := params["pattern"].(string)
		out, err := tb.Grep(pattern)
		return resultOrError(out, err)
	})

	r.register(directoryTreeSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		maxDepth := intParam(params, "max_depth", 2)
		out, err := tb.Tree(maxDepth)
		return resultOrError(out, err)
	})

	r.register(folderStatsSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		sortBy := toolbox.SortBy(stringParam(params, "sort_by", "size"))
		limit := intParam(params, "limit", 10)
		out, err := tb.FolderStats(sortBy, limit)
		return resultOrError(out, err)
	})

	r.register(diskUsageSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		out, err := tb.DiskUsage()
		return resultOrError(out, err)
	})

	r.register(respondSchema(), func(ctx context.Context, params map[string]any) (string, []string) {
		answer, _ := params["answer"].(string)
		return answer, nil
	})

	return r
}

func (r *Registry) register(tool mcp.Tool, h Handler) {
	r.schemas = append(r.schemas, tool)
	r.handlers[tool.Name] = h
}

// Call dispatches a tool call by name. Unknown tools yield
// ("Unknown tool: T", nil) per spec §4.7.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (string, []string) {
	h, ok := r.handlers[name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", name), nil
	}
	return h(ctx, params)
}

// Schemas returns every registered tool's mcp-go schema, in
// registration order, for embedding in the Agent's system prompt.
func (r *Registry) Schemas() []mcp.Tool {
	return r.schemas
}

// Known reports whether name is a registered tool.
func (r *Registry) Known(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

func resultOrError(text string, err error) (string, []string) {
	if err != nil {
		return fmt.Sprintf("error: %v", err), nil
	}
	return text, nil
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func semanticSearchSchema() mcp.Tool {
	return mcp.NewTool(ToolSemanticSearch,
		mcp.WithDescription("Semantic search over the indexed directory's content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query.")),
		mcp.WithNumber("top_k", mcp.Description("Number of results, 1-10 (default 5).")),
	)
}

func countFilesSchema() mcp.Tool {
	return mcp.NewTool(ToolCountFiles,
		mcp.WithDescription("Count files, optionally filtered by extension."),
		mcp.WithString("extension", mcp.Description("File extension without the dot, e.g. 'pdf'.")),
	)
}

func listFilesSchema() mcp.Tool {
	return mcp.NewTool(ToolListFiles,
		mcp.WithDescription("List recent files, optionally filtered by extension."),
		mcp.WithString("extension", mcp.Description("File extension without the dot.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of files to return (default 10).")),
		mcp.WithString("sort_by", mcp.Description("One of date, size, name (default date).")),
	)
}

func fileMetadataSchema() mcp.Tool {
	return mcp.NewTool(ToolFileMetadata,
		mcp.WithDescription("Get size and modified time for files matching a name substring."),
		mcp.WithString("name_hint", mcp.Required(), mcp.Description("Substring to match against file names.")),
	)
}

func grepFilesSchema() mcp.Tool {
	return mcp.NewTool(ToolGrepFiles,
		mcp.WithDescription("Search file contents for a pattern, returning matching file paths."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Text pattern to search for.")),
	)
}

func directoryTreeSchema() mcp.Tool {
	return mcp.NewTool(ToolDirectoryTree,
		mcp.WithDescription("Render an ASCII tree of the indexed directory."),
		mcp.WithNumber("max_depth", mcp.Description("Maximum depth to render (default 2).")),
	)
}

func folderStatsSchema() mcp.Tool {
	return mcp.NewTool(ToolFolderStats,
		mcp.WithDescription("Aggregate file size/count per top-level folder."),
		mcp.WithString("sort_by", mcp.Description("One of size, count (default size).")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of folders to return (default 10).")),
	)
}

func diskUsageSchema() mcp.Tool {
	return mcp.NewTool(ToolDiskUsage,
		mcp.WithDescription("Report total disk usage and a breakdown by extension."),
	)
}

func respondSchema() mcp.Tool {
	return mcp.NewTool(ToolRespond,
		mcp.WithDescription("Terminate the reasoning loop with a final answer."),
		mcp.WithString("answer", mcp.Required(), mcp.Description("The final answer text to return to the user.")),
	)
}
