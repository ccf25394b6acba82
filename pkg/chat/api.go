package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docchat/pkg/domain"
)

// API is a typed client for the gateway's browser-facing endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI constructs a gateway client for the given base URL.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// CreateSession uploads one file and returns the created session
// coordinates. projectName travels as the project_name form field.
func (a *API) CreateSession(ctx context.Context, filename string, file io.Reader, projectName string) (domain.CreatedProject, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return domain.CreatedProject{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.CreatedProject{}, err
	}
	if projectName != "" {
		if err := writer.WriteField("project_name", projectName); err != nil {
			return domain.CreatedProject{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return domain.CreatedProject{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/create", body)
	if err != nil {
		return domain.CreatedProject{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var created domain.CreatedProject
	if err := a.do(req, &created); err != nil {
		return domain.CreatedProject{}, err
	}
	return created, nil
}

// SendTurn posts one question and returns the backend's answer payload.
func (a *API) SendTurn(ctx context.Context, id Identity, query string) (domain.Answer, error) {
	payload := turnRequest{UserHash: id.OwnerHash, ProjectID: id.SessionID, Query: query}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Answer{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return domain.Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var ans domain.Answer
	if err := a.do(req, &ans); err != nil {
		return domain.Answer{}, err
	}
	return ans, nil
}

// SessionMetadata fetches the read-only description of a session.
func (a *API) SessionMetadata(ctx context.Context, id Identity) (domain.ProjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/projects/"+id.OwnerHash+"/"+id.SessionID, nil)
	if err != nil {
		return domain.ProjectInfo{}, err
	}

	var info domain.ProjectInfo
	if err := a.do(req, &info); err != nil {
		return domain.ProjectInfo{}, err
	}
	return info, nil
}

func (a *API) do(req *http.Request, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if msg == "" {
			msg = resp.Status
		}
		return &BackendError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

type turnRequest struct {
	UserHash  string `json:"user_hash"`
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
}
