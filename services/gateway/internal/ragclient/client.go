package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docchat/internal/servicetoken"
	"docchat/pkg/domain"
)

// tokenAudience is the service name the rag verifier expects.
const tokenAudience = "rag"

// Client calls the rag service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *servicetoken.Signer
}

// APIError represents a rag service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a rag service client. A nil signer disables the
// internal Authorization header, which only makes sense in tests.
func NewClient(baseURL string, signer *servicetoken.Signer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		signer:     signer,
	}
}

// Upload is one file forwarded as part of project creation.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// CreateProjectRequest carries the multipart fields relayed upstream.
type CreateProjectRequest struct {
	Name        string
	Description string
	Files       []Upload
}

func (c *Client) CreateProject(ctx context.Context, clientIP string, in CreateProjectRequest) (domain.CreatedProject, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range in.Files {
		part, err := writer.CreateFormFile("files", f.Filename)
		if err != nil {
			return domain.CreatedProject{}, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return domain.CreatedProject{}, err
		}
	}
	if in.Name != "" {
		if err := writer.WriteField("project_name", in.Name); err != nil {
			return domain.CreatedProject{}, err
		}
	}
	if in.Description != "" {
		if err := writer.WriteField("description", in.Description); err != nil {
			return domain.CreatedProject{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return domain.CreatedProject{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create", body)
	if err != nil {
		return domain.CreatedProject{}, err
	}
	addForwardedFor(req, clientIP)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var created domain.CreatedProject
	if err := c.do(req, &created); err != nil {
		return domain.CreatedProject{}, err
	}
	return created, nil
}

func (c *Client) Chat(ctx context.Context, clientIP, userHash, projectID, query string) (domain.Answer, error) {
	payload := chatRequest{UserHash: userHash, ProjectID: projectID, Query: query}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Answer{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(data))
	if err != nil {
		return domain.Answer{}, err
	}
	addForwardedFor(req, clientIP)
	req.Header.Set("Content-Type", "application/json")

	var ans domain.Answer
	if err := c.do(req, &ans); err != nil {
		return domain.Answer{}, err
	}
	return ans, nil
}

func (c *Client) ProjectInfo(ctx context.Context, clientIP, userHash, projectID string) (domain.ProjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/projects/"+userHash+"/"+projectID, nil)
	if err != nil {
		return domain.ProjectInfo{}, err
	}
	addForwardedFor(req, clientIP)

	var info domain.ProjectInfo
	if err := c.do(req, &info); err != nil {
		return domain.ProjectInfo{}, err
	}
	return info, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.signer != nil {
		token, err := c.signer.Sign(tokenAudience)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
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
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

func addForwardedFor(req *http.Request, clientIP string) {
	if strings.TrimSpace(clientIP) == "" {
		return
	}
	req.Header.Set("X-Forwarded-For", clientIP)
}

type chatRequest struct {
	UserHash  string `json:"user_hash"`
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
}
