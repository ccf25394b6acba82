package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"docchat/pkg/domain"
)

// Message roles.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Segment is one piece of message content.
type Segment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is one entry in the conversation history.
type Message struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	Content []Segment `json:"content"`
}

// errTurnFailed is recorded as the visitor-facing error when a turn
// fails for reasons the backend did not explain.
var errTurnFailed = errors.New("something went wrong, please try again")

// Session owns one conversation: the identity resolved from the
// activation path, the ordered message history and the in-flight state
// of the current turn. History is append-only and lives only as long
// as the session value.
type Session struct {
	api  *API
	path string

	mu              sync.Mutex
	messages        []Message
	loading         bool
	lastErr         error
	documentName    string
	metadataFetched bool
	lastStamp       int64
}

// NewSession constructs a session for an activation path. The
// constructor performs no I/O.
func NewSession(api *API, activationPath string) *Session {
	return &Session{api: api, path: activationPath}
}

// Activate resolves the session identity and fetches metadata once,
// best-effort: a metadata failure is logged and swallowed because the
// metadata is cosmetic. An unresolvable path returns ErrInvalidSession
// without any network use.
func (s *Session) Activate(ctx context.Context) error {
	id, ok := ResolveIdentity(s.path)
	if !ok {
		return ErrInvalidSession
	}

	s.mu.Lock()
	if s.metadataFetched {
		s.mu.Unlock()
		return nil
	}
	s.metadataFetched = true
	s.mu.Unlock()

	info, err := s.api.SessionMetadata(ctx, id)
	if err != nil {
		slog.Warn("session metadata fetch failed", "owner_hash", id.OwnerHash, "session_id", id.SessionID, "err", err)
		return nil
	}
	if len(info.DocumentNames) > 0 {
		s.adoptDocumentName(info.DocumentNames[0])
	}
	return nil
}

// SendMessage runs one turn and returns the backend's answer. The
// question is appended to the history before the request is issued;
// the answer is appended only on success, so a failed turn leaves the
// question visible without an answer. The raw failure is returned
// while Err() holds what the visitor should see. No retries happen
// automatically.
func (s *Session) SendMessage(ctx context.Context, text string) (domain.Answer, error) {
	id, ok := ResolveIdentity(s.path)
	if !ok {
		return domain.Answer{}, ErrInvalidSession
	}

	s.mu.Lock()
	s.loading = true
	s.lastErr = nil
	s.messages = append(s.messages, s.newMessageLocked(RoleHuman, text))
	s.mu.Unlock()
	defer s.setLoading(false)

	ans, err := s.api.SendTurn(ctx, id, text)
	if err != nil {
		s.recordErr(err)
		return domain.Answer{}, err
	}
	if ans.Error != "" {
		backendErr := &BackendError{Status: http.StatusOK, Message: ans.Error}
		s.recordErr(backendErr)
		return domain.Answer{}, backendErr
	}

	s.mu.Lock()
	if s.documentName == "" && len(ans.Sources) > 0 {
		s.documentName = ans.Sources[0]
	}
	s.messages = append(s.messages, s.newMessageLocked(RoleAI, ans.Answer))
	s.mu.Unlock()
	return ans, nil
}

// Messages returns a copy of the conversation history in arrival order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether a turn is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the failure recorded by the most recent turn, nil after
// a successful turn.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// DocumentName returns the best-effort label of the conversed
// document: the first metadata document name, else the first source of
// the first successful turn. Set at most once.
func (s *Session) DocumentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentName
}

func (s *Session) adoptDocumentName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.documentName == "" {
		s.documentName = name
	}
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

// recordErr keeps backend messages verbatim for the visitor and
// collapses transport or decoding failures to a generic message.
func (s *Session) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if backendErr, ok := err.(*BackendError); ok {
		s.lastErr = backendErr
		return
	}
	s.lastErr = errTurnFailed
}

// newMessageLocked builds a message with a timestamp-derived ID that
// stays strictly increasing even when two messages land in the same
// millisecond. Callers hold s.mu.
func (s *Session) newMessageLocked(role, text string) Message {
	stamp := time.Now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return Message{
		ID:      strconv.FormatInt(stamp, 10),
		Role:    role,
		Content: []Segment{{Type: "text", Text: text}},
	}
}
