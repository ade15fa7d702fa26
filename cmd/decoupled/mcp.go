package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
	"github.com/ternarybob/decoupled/internal/services/chat"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search and ask tools over MCP (stdio)",
	Long: `Starts a Model Context Protocol server on stdio exposing two tools:
search_articles (semantic search) and ask (a full chat turn).`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	mcpServer := newMCPServer(application.SearchService, application.ChatService, logger)
	return server.ServeStdio(mcpServer)
}

// newMCPServer registers the knowledge-base tools
func newMCPServer(searchService interfaces.SearchService, chatService interfaces.ChatService, logger arbor.ILogger) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"decoupled",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createSearchArticlesTool(), handleSearchArticles(searchService, logger))
	mcpServer.AddTool(createAskTool(), handleAsk(chatService, logger))

	return mcpServer
}

// createSearchArticlesTool returns the search_articles tool definition
func createSearchArticlesTool() mcp.Tool {
	return mcp.NewTool(chat.SearchToolName,
		mcp.WithDescription("Semantic search over the knowledge-base articles"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 10, max: 50)"),
		),
	)
}

// createAskTool returns the ask tool definition
func createAskTool() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the knowledge base, citing the articles used"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
	)
}

// handleSearchArticles implements the search_articles tool
func handleSearchArticles(searchService interfaces.SearchService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("Error: query parameter is required"), nil
		}

		limit := request.GetInt("limit", 10)

		results, err := searchService.Search(ctx, query, limit)
		if err != nil {
			logger.Error().Err(err).Str("query", query).Msg("MCP search failed")
			return mcp.NewToolResultError("Search failed: " + userMessage(err)), nil
		}

		return mcp.NewToolResultText(formatSearchMarkdown(query, results)), nil
	}
}

// handleAsk implements the ask tool
func handleAsk(chatService interfaces.ChatService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("Error: question parameter is required"), nil
		}

		reply, err := chatService.Chat(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: question}})
		if err != nil {
			logger.Error().Err(err).Msg("MCP ask failed")
			return mcp.NewToolResultError("Chat failed: " + userMessage(err)), nil
		}

		return mcp.NewToolResultText(formatAnswerMarkdown(reply)), nil
	}
}

// formatSearchMarkdown renders results as a markdown list
func formatSearchMarkdown(query string, results []models.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Search results for %q\n\n", query)

	if len(results) == 0 {
		b.WriteString("No matching articles.\n")
		return b.String()
	}

	for i, result := range results {
		article := result.Article
		fmt.Fprintf(&b, "%d. **%s** (%s, score %.3f)\n", i+1, article.Title, article.Category, result.Score)
		if article.Slug != "" {
			fmt.Fprintf(&b, "   - Path: %s\n", article.Slug)
		}
		if article.Summary != "" {
			fmt.Fprintf(&b, "   - %s\n", article.Summary)
		}
	}
	return b.String()
}

// formatAnswerMarkdown renders a chat reply with its sources
func formatAnswerMarkdown(reply *models.ChatReply) string {
	var b strings.Builder
	b.WriteString(reply.Message)
	b.WriteString("\n")

	if len(reply.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, source := range reply.Sources {
			if source.Slug != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", source.Title, source.Slug)
			} else {
				fmt.Fprintf(&b, "- %s\n", source.Title)
			}
		}
	}
	return b.String()
}
