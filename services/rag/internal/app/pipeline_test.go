package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat/pkg/ai"
	"docchat/pkg/domain"
	"docchat/pkg/storage"
	"docchat/pkg/store"
)

type stubEmbedder struct {
	vec        []float32
	err        error
	batchErr   error
	batchCalls int
}

func (s *stubEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

type stubGenerator struct {
	answer string
	err    error
	calls  int
	got    []ai.Message
}

func (s *stubGenerator) GenerateText(_ context.Context, messages []ai.Message) (string, error) {
	s.calls++
	s.got = messages
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func newTestApp(t *testing.T, st store.Store, emb *stubEmbedder, gen *stubGenerator) *App {
	t.Helper()
	objects, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	a, err := New(Config{
		Store:     st,
		Objects:   objects,
		Embedder:  emb,
		Generator: gen,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

// seedChatProject stores one project with three chunks whose
// embeddings make similarity against the {1,0,0} query direction easy
// to control.
func seedChatProject(t *testing.T, st store.Store) domain.Project {
	t.Helper()
	project := domain.Project{ID: "p-1", OwnerHash: "owner0123456789a", Name: "My Documents"}
	docs := []domain.Document{
		{ID: "d-1", ProjectID: "p-1", Filename: "guide.pdf", ChunkCount: 2},
		{ID: "d-2", ProjectID: "p-1", Filename: "notes.pdf", ChunkCount: 1},
	}
	chunks := []domain.Chunk{
		{ID: "c-1", ProjectID: "p-1", DocumentID: "d-1", Seq: 0, Content: "alpha", Source: "guide.pdf"},
		{ID: "c-2", ProjectID: "p-1", DocumentID: "d-2", Seq: 0, Content: "beta", Source: "notes.pdf"},
		{ID: "c-3", ProjectID: "p-1", DocumentID: "d-1", Seq: 1, Content: "gamma", Source: "guide.pdf"},
	}
	embeddings := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0.5, 0.5, 0},
	}
	if err := st.CreateProject(project, docs, chunks, embeddings); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func assertSteps(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("processing steps = %v, want %v", got, want)
	}
}

func TestChatAnswersFromRetrievedChunks(t *testing.T) {
	st := store.NewMemoryStore()
	project := seedChatProject(t, st)
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	gen := &stubGenerator{answer: "The answer is alpha."}
	a := newTestApp(t, st, emb, gen)

	ans, err := a.Chat(context.Background(), project.OwnerHash, project.ID, "what is alpha?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if ans.Answer != "The answer is alpha." {
		t.Fatalf("answer = %q, want generator output", ans.Answer)
	}
	assertSteps(t, ans.ProcessingSteps, []string{stepRouted, stepRetrieved, stepGenerated})
	if strings.Join(ans.Sources, ",") != "guide.pdf,notes.pdf" {
		t.Fatalf("sources = %v, want [guide.pdf notes.pdf]", ans.Sources)
	}
	if ans.Error != "" {
		t.Fatalf("error = %q, want empty", ans.Error)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
}

func TestChatUnknownProject(t *testing.T) {
	st := store.NewMemoryStore()
	a := newTestApp(t, st, &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})

	_, err := a.Chat(context.Background(), "owner0123456789a", "missing", "hello")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("Chat() error = %v, want ErrProjectNotFound", err)
	}
}

func TestChatEmptyQuery(t *testing.T) {
	st := store.NewMemoryStore()
	project := seedChatProject(t, st)
	a := newTestApp(t, st, &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})

	_, err := a.Chat(context.Background(), project.OwnerHash, project.ID, "   ")
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("Chat() error = %v, want ErrEmptyQuery", err)
	}
}

func TestChatBelowThresholdFallsBack(t *testing.T) {
	st := store.NewMemoryStore()
	project := seedChatProject(t, st)
	// Orthogonal to every stored embedding, so all similarities are 0.
	emb := &stubEmbedder{vec: []float32{0, 0, 1}}
	gen := &stubGenerator{answer: "should not run"}
	a := newTestApp(t, st, emb, gen)

	ans, err := a.Chat(context.Background(), project.OwnerHash, project.ID, "unrelated")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if ans.Answer != noContextAnswer {
		t.Fatalf("answer = %q, want fallback", ans.Answer)
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("sources = %v, want empty", ans.Sources)
	}
	assertSteps(t, ans.ProcessingSteps, []string{stepRouted, stepRetrieved, stepGenerated})
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", gen.calls)
	}
}

func TestChatWithoutIndex(t *testing.T) {
	st := store.NewMemoryStore()
	project := domain.Project{ID: "p-empty", OwnerHash: "owner0123456789a", Name: "My Documents"}
	if err := st.CreateProject(project, nil, nil, nil); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	gen := &stubGenerator{answer: "should not run"}
	a := newTestApp(t, st, &stubEmbedder{vec: []float32{1, 0, 0}}, gen)

	ans, err := a.Chat(context.Background(), project.OwnerHash, project.ID, "anything")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if ans.Answer != noContextAnswer {
		t.Fatalf("answer = %q, want fallback", ans.Answer)
	}
	assertSteps(t, ans.ProcessingSteps, []string{stepRouted, stepNoIndex, stepGenerated})
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", gen.calls)
	}
}

func TestChatEmbeddingFailure(t *testing.T) {
	st := store.NewMemoryStore()
	project := seedChatProject(t, st)
	emb := &stubEmbedder{err: errors.New("model offline")}
	a := newTestApp(t, st, emb, &stubGenerator{answer: "x"})

	ans, err := a.Chat(context.Background(), project.OwnerHash, project.ID, "hello")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if ans.Answer != noContextAnswer {
		t.Fatalf("answer = %q, want fallback", ans.Answer)
	}
	assertSteps(t, ans.ProcessingSteps, []string{stepRouted, stepRetrievalError, stepGenerated})
	if !strings.Contains(ans.Error, "model offline") {
		t.Fatalf("error = %q, want embed failure recorded", ans.Error)
	}
}

func TestChatGenerationFailure(t *testing.T) {
	st := store.NewMemoryStore()
	project := seedChatProject(t, st)
	gen := &stubGenerator{err: errors.New("model offline")}
	a := newTestApp(t, st, &stubEmbedder{vec: []float32{1, 0, 0}}, gen)

	ans, err := a.Chat(context.Background(), project.OwnerHash, project.ID, "hello")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if ans.Answer != "Sorry, I encountered an error: model offline" {
		t.Fatalf("answer = %q, want apologetic wrapper", ans.Answer)
	}
	assertSteps(t, ans.ProcessingSteps, []string{stepRouted, stepRetrieved, stepGenerationError})
	if ans.Error != "model offline" {
		t.Fatalf("error = %q, want %q", ans.Error, "model offline")
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("sources = %v, want empty on failure", ans.Sources)
	}
}

func TestAnswerQuestionKeepsRecentHistory(t *testing.T) {
	st := store.NewMemoryStore()
	project := seedChatProject(t, st)
	gen := &stubGenerator{answer: "ok"}
	a := newTestApp(t, st, &stubEmbedder{vec: []float32{1, 0, 0}}, gen)

	history := []ai.Message{
		{Role: "human", Content: "h1"},
		{Role: "ai", Content: "a1"},
		{Role: "human", Content: "h2"},
		{Role: "ai", Content: "a2"},
		{Role: "human", Content: "h3"},
	}
	a.answerQuestion(context.Background(), project, "follow up", history)

	if len(gen.got) != 5 {
		t.Fatalf("generator got %d messages, want system + 3 history + question", len(gen.got))
	}
	if gen.got[0].Role != "system" {
		t.Fatalf("first message role = %q, want system", gen.got[0].Role)
	}
	if gen.got[1].Content != "h2" || gen.got[2].Content != "a2" || gen.got[3].Content != "h3" {
		t.Fatalf("history window = %q %q %q, want last three", gen.got[1].Content, gen.got[2].Content, gen.got[3].Content)
	}
	last := gen.got[len(gen.got)-1]
	if last.Role != "user" || !strings.Contains(last.Content, "follow up") {
		t.Fatalf("final message = %+v, want user question", last)
	}
}
