package chat

import (
	"fmt"
	"strings"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// SearchToolName is the only tool offered to the model
const SearchToolName = "search_articles"

// NoResultsText is the tool payload when a search finds nothing
const NoResultsText = "No relevant articles found."

// SystemPrompt frames the assistant as a knowledge-base guide that searches before answering
const SystemPrompt = `You are a focused AI assistant for a technical knowledge base about web development, including topics like Next.js, React, TypeScript, Drupal, databases, APIs, and related technologies.

## Your Role
- Help users find and understand information from the knowledge base
- Stay focused on topics covered in the articles
- Use the search_articles tool to find relevant content before answering

## Guidelines
1. ALWAYS search the knowledge base first when users ask questions
2. Base your answers primarily on the article content found
3. If a question is off-topic (not related to web development, programming, or the knowledge base topics), politely redirect: "I'm focused on helping with web development topics. Is there something about Next.js, React, TypeScript, databases, or APIs I can help you with?"
4. If no relevant articles are found for an on-topic question, briefly help but mention that the knowledge base doesn't cover that specific topic yet

## Response Formatting
Use rich markdown for readability:
- **## Headers** to organize sections
- **Bold** for key terms and article titles
- Bullet points for lists
- ` + "`inline code`" + ` for technical terms, commands, filenames
- Code blocks with language tags for examples

## Example Structure
## Topic Overview
Brief introduction based on articles...

**Key Points:**
- Point from article
- Another insight

## Learn More
Reference to related articles...

Stay helpful, accurate, and focused on the knowledge base content.`

// SearchTool is the catalog entry for search_articles
var SearchTool = interfaces.ToolDefinition{
	Name:        SearchToolName,
	Description: "Search the knowledge base for articles relevant to the user's question. Use this when the user asks about topics that might be covered in our articles, wants to find information, or when you need to cite sources.",
	Parameters: []interfaces.ToolParameter{
		{
			Name:        "query",
			Type:        "string",
			Description: "The search query to find relevant articles. Be specific and include key terms.",
			Required:    true,
		},
	},
}

// FormatResults renders search results as the tool payload seen by the model:
// "**title** (category)\nsummary" per result, separated by blank lines.
func FormatResults(results []models.SearchResult) string {
	if len(results) == 0 {
		return NoResultsText
	}

	entries := make([]string, 0, len(results))
	for _, result := range results {
		entries = append(entries, fmt.Sprintf("**%s** (%s)\n%s",
			result.Article.Title, result.Article.Category, result.Article.Summary))
	}
	return strings.Join(entries, "\n\n")
}
