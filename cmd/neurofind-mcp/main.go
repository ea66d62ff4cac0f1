// neurofind-mcp bridges one already-indexed directory's ToolRegistry onto
// the Model Context Protocol, so MCP-aware clients (editors, other
// agents) can call semantic_search and the filesystem introspection
// tools directly instead of going through the NDJSON query loop.
// Grounded on index/mcp_server.go's MCPServer shape (mcp.NewTool-backed
// registration, server.ServeStdio), with the tool set itself reused
// verbatim from pkg/toolregistry rather than redeclared here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/manole-ai/neurofind/internal/config"
	"github.com/manole-ai/neurofind/internal/protocol"
	"github.com/manole-ai/neurofind/pkg/directoryentry"
	"github.com/manole-ai/neurofind/pkg/server"
)

func main() {
	dataDir := flag.String("dir", "", "directory to index and expose over MCP (required)")
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "neurofind-mcp: --dir is required")
		os.Exit(1)
	}

	if err := run(*dataDir, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "neurofind-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir, configPath string) error {
	path := configPath
	if path == "" {
		if envPath := os.Getenv("NEUROFIND_CONFIG"); envPath != "" {
			path = envPath
		} else {
			path = config.DefaultConfigPath()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("NEUROFIND_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}

	// Events from the shared build pipeline (directory_update, status,
	// captioning_progress) go to stderr: stdout is reserved for MCP's own
	// JSON-RPC frames and must never see anything else.
	writer := protocol.NewWriter(os.Stderr)
	app := server.New(cfg, writer)

	entry, err := app.InitDirectory(context.Background(), dataDir)
	if err != nil {
		return fmt.Errorf("index %s: %w", dataDir, err)
	}

	bridge := newBridge(entry)
	return mcpserver.ServeStdio(bridge.mcpServer())
}

// bridge exposes one DirectoryEntry's ToolRegistry as MCP tools.
type bridge struct {
	entry *directoryentry.DirectoryEntry
}

func newBridge(entry *directoryentry.DirectoryEntry) *bridge {
	return &bridge{entry: entry}
}

func (b *bridge) mcpServer() *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"neurofind",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	for _, tool := range b.entry.Registry.Schemas() {
		if tool.Name == "respond" {
			// respond is an internal agent-loop control tool, not something
			// an MCP client should be able to invoke directly.
			continue
		}
		s.AddTool(tool, b.handlerFor(tool.Name))
	}

	return s
}

// handlerFor dispatches one named tool call through the shared
// ToolRegistry, converting its (text, sources) result into MCP content.
func (b *bridge) handlerFor(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		text, sources := b.entry.Registry.Call(ctx, name, args)
		if len(sources) == 0 {
			return mcp.NewToolResultText(text), nil
		}

		result := text + "\n\nSources:\n"
		for _, src := range sources {
			result += "- " + src + "\n"
		}
		return mcp.NewToolResultText(result), nil
	}
}
