package usecase

import (
	"strings"
	"text/template"

	"docchat/internal/domain"
)

var promptTemplate = template.Must(template.New("prompt").Parse(`
You are an AI assistant. Use the context below to answer the question.

Context from documents:
{{.Context}}

Previous conversation memory:
{{.Memory}}

Question:
{{.Question}}

Answer concisely and provide sources.
`))

type promptData struct {
	Context  string
	Memory   string
	Question string
}

// BuildPrompt renders the single-turn prompt. Chunk texts are joined with a
// blank line in rank order; memory is used verbatim.
func BuildPrompt(question string, chunks []domain.ScoredChunk, memory string) (string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}

	var b strings.Builder
	err := promptTemplate.Execute(&b, promptData{
		Context:  strings.Join(texts, "\n\n"),
		Memory:   memory,
		Question: question,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
