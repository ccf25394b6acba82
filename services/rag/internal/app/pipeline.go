package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docchat/pkg/ai"
	"docchat/pkg/domain"
)

// Pipeline step markers recorded on every answer, in execution order.
const (
	stepRouted          = "routed_to_document_search"
	stepRetrieved       = "retrieved_documents"
	stepNoIndex         = "no_index_found"
	stepRetrievalError  = "retrieval_error"
	stepGenerated       = "generated_answer"
	stepGenerationError = "generation_error"
	stepErrorOccurred   = "error_occurred"
)

const noContextAnswer = "I couldn't find any relevant information in your documents to answer this question. Please try rephrasing your query or make sure your documents contain information about this topic."

const systemPrompt = "You are a helpful assistant that answers questions about the user's documents. " +
	"Answer using only the provided context. If the context does not contain the answer, say that instead of guessing."

const historyLimit = 3

// answerQuestion runs retrieval and generation for one question.
// Failures are folded into the answer payload instead of an error
// return, so every question gets a response body.
func (a *App) answerQuestion(ctx context.Context, project domain.Project, query string, history []ai.Message) (result domain.Answer) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%v", r)
			slog.Error("pipeline panic", "project_id", project.ID, "err", msg)
			result = domain.Answer{
				Answer:          "Sorry, I encountered an error: " + msg,
				Sources:         []string{},
				ProcessingSteps: []string{stepErrorOccurred},
				Error:           msg,
			}
		}
	}()

	steps := []string{stepRouted}
	chunks, step, retrieveErr := a.retrieve(ctx, project.ID, query)
	steps = append(steps, step)

	if len(chunks) == 0 {
		steps = append(steps, stepGenerated)
		answer := domain.Answer{
			Answer:          noContextAnswer,
			Sources:         []string{},
			ProcessingSteps: steps,
		}
		if retrieveErr != nil {
			answer.Error = retrieveErr.Error()
		}
		return answer
	}

	text, err := a.generate(ctx, project, query, chunks, history)
	if err != nil {
		slog.Warn("generation failed", "project_id", project.ID, "err", err)
		steps = append(steps, stepGenerationError)
		return domain.Answer{
			Answer:          "Sorry, I encountered an error: " + err.Error(),
			Sources:         []string{},
			ProcessingSteps: steps,
			Error:           err.Error(),
		}
	}
	steps = append(steps, stepGenerated)
	return domain.Answer{
		Answer:          text,
		Sources:         chunkSources(chunks),
		ProcessingSteps: steps,
	}
}

// retrieve embeds the query and returns the chunks above the
// similarity threshold, along with the pipeline step that describes
// the outcome.
func (a *App) retrieve(ctx context.Context, projectID, query string) ([]domain.ScoredChunk, string, error) {
	queryVec, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed", "project_id", projectID, "err", err)
		return nil, stepRetrievalError, fmt.Errorf("embed query: %w", err)
	}
	found, err := a.store.SearchChunks(projectID, queryVec, a.topK)
	if err != nil {
		slog.Warn("chunk search failed", "project_id", projectID, "err", err)
		return nil, stepRetrievalError, fmt.Errorf("search chunks: %w", err)
	}
	if len(found) == 0 {
		return nil, stepNoIndex, nil
	}
	kept := found[:0]
	for _, chunk := range found {
		if chunk.Similarity >= a.threshold {
			kept = append(kept, chunk)
		}
	}
	return kept, stepRetrieved, nil
}

func (a *App) generate(ctx context.Context, project domain.Project, query string, chunks []domain.ScoredChunk, history []ai.Message) (string, error) {
	var contextText strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			contextText.WriteString("\n\n")
		}
		fmt.Fprintf(&contextText, "Document: %s\n%s", chunk.Source, chunk.Content)
	}
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, ai.Message{Role: "user", Content: fmt.Sprintf(
		"Context from the documents:\n%s\n\nQuestion: %s", contextText.String(), query)})

	answer, err := a.generator.GenerateText(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// chunkSources lists the distinct document filenames behind the
// retrieved chunks, in first-seen order.
func chunkSources(chunks []domain.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		name := strings.TrimSpace(chunk.Source)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
	}
	return sources
}
