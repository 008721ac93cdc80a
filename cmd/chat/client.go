package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"socratic/models"
)

// apiClient talks to the conversation server over its JSON API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) Categories(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	err := c.do(ctx, http.MethodGet, "/categories", nil, &out)
	return out, err
}

func (c *apiClient) StartPredefined(ctx context.Context, req models.StartPredefinedRequest) (*models.StartConversationResponse, error) {
	var out models.StartConversationResponse
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) StartCustom(ctx context.Context, req models.StartCustomRequest) (*models.StartConversationResponse, error) {
	var out models.StartConversationResponse
	if err := c.do(ctx, http.MethodPost, "/conversations/custom", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) SendMessage(ctx context.Context, sessionID string, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	var out models.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(sessionID)+"/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Evaluate(ctx context.Context, sessionID string) (*models.EvaluateResponse, error) {
	var out models.EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(sessionID)+"/evaluate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Conversations(ctx context.Context, email string) ([]models.ConversationRecord, error) {
	var out []models.ConversationRecord
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(email)+"/conversations", nil, &out)
	return out, err
}

func (c *apiClient) Conversation(ctx context.Context, email, sessionID string) (*models.ConversationRecord, error) {
	var out models.ConversationRecord
	path := "/users/" + url.PathEscape(email) + "/conversations/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e["error"]}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
