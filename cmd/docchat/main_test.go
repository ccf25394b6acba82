package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func execute(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestSessionPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/chat/abc/123", "/chat/abc/123"},
		{"http://localhost:8080/chat/abc/123", "/chat/abc/123"},
		{"https://docchat.example/chat/abc/123?ref=1", "/chat/abc/123"},
	}
	for _, tt := range tests {
		if got := sessionPath(tt.in); got != tt.want {
			t.Errorf("sessionPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUploadCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/create" {
			t.Errorf("got %s %s, want POST /api/create", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_hash":"abc","project_id":"123"}`))
	}))
	defer ts.Close()

	file := filepath.Join(t.TempDir(), "thesis.pdf")
	if err := os.WriteFile(file, []byte("%PDF-content"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	out, err := execute(t, "", "upload", file, "--gateway", ts.URL)
	if err != nil {
		t.Fatalf("upload command error = %v", err)
	}
	if !strings.Contains(out, "/chat/abc/123") {
		t.Fatalf("output = %q, want the session path", out)
	}
	if !strings.Contains(out, "docchat chat /chat/abc/123") {
		t.Fatalf("output = %q, want a chat hint", out)
	}
}

func TestUploadCommandRejectsMissingFile(t *testing.T) {
	if _, err := execute(t, "", "upload", filepath.Join(t.TempDir(), "absent.pdf"), "--gateway", "http://localhost:0"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestChatCommandRejectsNonSessionPath(t *testing.T) {
	if _, err := execute(t, "", "chat", "/about", "--gateway", "http://localhost:0"); err == nil {
		t.Fatal("expected error for a path outside the chat scheme")
	}
}

func TestChatCommandRunsTurns(t *testing.T) {
	var turn atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects/u1/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"project_id":"p1","project_name":"spec","document_names":["spec.pdf"]}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		answers := []string{"Answer one.", "Answer two."}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":  answers[turn.Add(1)-1],
			"sources": []string{"spec.pdf"},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	out, err := execute(t, "first?\nsecond?\n", "chat", "/chat/u1/p1", "--gateway", ts.URL)
	if err != nil {
		t.Fatalf("chat command error = %v", err)
	}
	if !strings.Contains(out, "Chatting with spec.pdf") {
		t.Fatalf("output = %q, want the adopted document name", out)
	}
	first := strings.Index(out, "Answer one.")
	second := strings.Index(out, "Answer two.")
	if first < 0 || second < 0 || second < first {
		t.Fatalf("output = %q, want both answers in order", out)
	}
	if !strings.Contains(out, "sources: spec.pdf") {
		t.Fatalf("output = %q, want sources line", out)
	}
}
