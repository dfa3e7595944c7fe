package retrieval

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// SystemPrompt is sent as the system message of every grounded query.
const SystemPrompt = "You are a helpful assistant that answers questions using only the documents provided by the user. " +
	"If the documents do not contain the answer, say so plainly. Do not use outside knowledge."

// BuildPrompt assembles the user message for a grounded query. It has no
// side effects: equal inputs give equal output.
func BuildPrompt(chunks []vectorstore.SearchResult, query, extraContext string) string {
	var b strings.Builder

	if ctx := strings.TrimSpace(extraContext); ctx != "" {
		b.WriteString("Additional context:\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	b.WriteString("Documents:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[Chunk %d] (source: %s, chunk %d of %d)\n%s\n\n",
			i+1,
			c.Record.Metadata.Source,
			c.Record.Metadata.ChunkIndex+1,
			c.Record.Metadata.TotalChunks,
			c.Record.Text)
	}

	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("- Answer using only the information in the documents above.\n")
	b.WriteString("- If the documents do not contain the answer, say that the answer is not in the provided documents.\n")
	b.WriteString("- Cite the chunks you used by their label, for example [Chunk 1].\n")

	return b.String()
}

// preview returns at most n runes of text, with an ellipsis when cut.
func preview(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
