package app

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"docchat/pkg/domain"
	"docchat/pkg/storage"
	"docchat/pkg/store"
)

func newTestAppAt(t *testing.T, dir string, st store.Store, emb *stubEmbedder, gen *stubGenerator) *App {
	t.Helper()
	objects, err := storage.NewDiskStore(dir)
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

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return count
}

func TestCreateProjectValidation(t *testing.T) {
	junkPDF := Upload{Filename: "a.pdf", Data: []byte("x")}
	cases := []struct {
		name    string
		uploads []Upload
	}{
		{"no files", nil},
		{"too many files", []Upload{junkPDF, junkPDF, junkPDF, junkPDF}},
		{"not a pdf", []Upload{{Filename: "notes.txt", Data: []byte("x")}}},
		{"oversized", []Upload{{Filename: "big.pdf", Size: 16 << 20, Data: []byte("x")}}},
		{"empty file", []Upload{{Filename: "empty.pdf", Data: nil}}},
	}
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	a := newTestAppAt(t, t.TempDir(), store.NewMemoryStore(), emb, &stubGenerator{answer: "x"})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.CreateProject(context.Background(), "", "", tc.uploads)
			if !errors.Is(err, ErrInvalidUpload) {
				t.Fatalf("CreateProject() error = %v, want ErrInvalidUpload", err)
			}
		})
	}
	if emb.batchCalls != 0 {
		t.Fatalf("embedder called %d times during validation failures, want 0", emb.batchCalls)
	}
}

func TestCreateProjectPersistsEverything(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMemoryStore()
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	gen := &stubGenerator{answer: "Alpha is first."}
	a := newTestAppAt(t, dir, st, emb, gen)

	uploads := []Upload{
		{Filename: "guide.pdf", Data: minimalPDF(t, "Alpha beta gamma")},
		{Filename: "notes.pdf", Data: minimalPDF(t, "Delta epsilon")},
	}
	resp, err := a.CreateProject(context.Background(), "Research Notes", "term paper sources", uploads)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if resp.ProjectName != "Research Notes" {
		t.Fatalf("projectName = %q, want %q", resp.ProjectName, "Research Notes")
	}
	if len(resp.OwnerHash) != 16 {
		t.Fatalf("ownerHash = %q, want 16 hex chars", resp.OwnerHash)
	}
	for _, r := range resp.OwnerHash {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("ownerHash = %q contains non-hex %q", resp.OwnerHash, r)
		}
	}
	if resp.Message != "Successfully created project with 2 documents and 2 chunks" {
		t.Fatalf("message = %q", resp.Message)
	}
	if got := countFiles(t, dir); got != 2 {
		t.Fatalf("stored files = %d, want 2", got)
	}
	if emb.batchCalls != 1 {
		t.Fatalf("embed batches = %d, want 1", emb.batchCalls)
	}

	info, err := a.ProjectInfo(resp.OwnerHash, resp.ProjectID)
	if err != nil {
		t.Fatalf("ProjectInfo() error = %v", err)
	}
	if info.DocumentCount != 2 || info.TotalChunks != 2 {
		t.Fatalf("document_count = %d, total_chunks = %d, want 2 and 2", info.DocumentCount, info.TotalChunks)
	}
	if strings.Join(info.DocumentNames, ",") != "guide.pdf,notes.pdf" {
		t.Fatalf("documentNames = %v", info.DocumentNames)
	}
	if info.Description != "term paper sources" {
		t.Fatalf("description = %q", info.Description)
	}

	projects, err := a.ListProjects(resp.OwnerHash)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 1 || projects[0].ProjectID != resp.ProjectID {
		t.Fatalf("ListProjects() = %+v, want the created project", projects)
	}

	ans, err := a.Chat(context.Background(), resp.OwnerHash, resp.ProjectID, "what is alpha?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if ans.Answer != "Alpha is first." {
		t.Fatalf("answer = %q", ans.Answer)
	}
	if strings.Join(ans.Sources, ",") != "guide.pdf,notes.pdf" {
		t.Fatalf("sources = %v", ans.Sources)
	}
}

func TestCreateProjectDefaultName(t *testing.T) {
	a := newTestAppAt(t, t.TempDir(), store.NewMemoryStore(), &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})
	resp, err := a.CreateProject(context.Background(), "   ", "", []Upload{
		{Filename: "doc.pdf", Data: minimalPDF(t, "Some content here")},
	})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if resp.ProjectName != "My Documents" {
		t.Fatalf("projectName = %q, want default", resp.ProjectName)
	}
}

func TestCreateProjectRejectsUnparseablePDF(t *testing.T) {
	dir := t.TempDir()
	a := newTestAppAt(t, dir, store.NewMemoryStore(), &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})
	_, err := a.CreateProject(context.Background(), "", "", []Upload{
		{Filename: "bad.pdf", Data: []byte("junk that is named like a pdf")},
	})
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("CreateProject() error = %v, want ErrInvalidUpload", err)
	}
	if got := countFiles(t, dir); got != 0 {
		t.Fatalf("stored files = %d, want 0 after failed create", got)
	}
}

func TestCreateProjectCleansUpOnEmbedFailure(t *testing.T) {
	dir := t.TempDir()
	emb := &stubEmbedder{vec: []float32{1, 0, 0}, batchErr: errors.New("quota exceeded")}
	a := newTestAppAt(t, dir, store.NewMemoryStore(), emb, &stubGenerator{answer: "x"})
	_, err := a.CreateProject(context.Background(), "", "", []Upload{
		{Filename: "doc.pdf", Data: minimalPDF(t, "Some content here")},
	})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("CreateProject() error = %v, want embed failure", err)
	}
	if got := countFiles(t, dir); got != 0 {
		t.Fatalf("stored files = %d, want 0 after cleanup", got)
	}
}

type failingStore struct {
	store.Store
	createErr error
}

func (f *failingStore) CreateProject(domain.Project, []domain.Document, []domain.Chunk, [][]float32) error {
	return f.createErr
}

func TestCreateProjectCleansUpOnStoreFailure(t *testing.T) {
	dir := t.TempDir()
	st := &failingStore{Store: store.NewMemoryStore(), createErr: errors.New("db down")}
	a := newTestAppAt(t, dir, st, &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})
	_, err := a.CreateProject(context.Background(), "", "", []Upload{
		{Filename: "doc.pdf", Data: minimalPDF(t, "Some content here")},
	})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("CreateProject() error = %v, want store failure", err)
	}
	if got := countFiles(t, dir); got != 0 {
		t.Fatalf("stored files = %d, want 0 after cleanup", got)
	}
}

func TestProjectInfoNotFound(t *testing.T) {
	a := newTestAppAt(t, t.TempDir(), store.NewMemoryStore(), &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})
	if _, err := a.ProjectInfo("owner0123456789a", "missing"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("ProjectInfo() error = %v, want ErrProjectNotFound", err)
	}
}

func TestListProjectsEmptyOwner(t *testing.T) {
	a := newTestAppAt(t, t.TempDir(), store.NewMemoryStore(), &stubEmbedder{vec: []float32{1, 0, 0}}, &stubGenerator{answer: "x"})
	projects, err := a.ListProjects("owner0123456789a")
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("ListProjects() = %v, want empty", projects)
	}
}
