package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/proxy"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

type apiClient struct {
	baseURL    string
	httpClient *http.Client
	// streamTimeout bounds one streamed reply; zero means no limit.
	streamTimeout time.Duration
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL:       cfg.ServerURL(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		streamTimeout: cfg.Client.Timeout(),
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is `pdflearn serve` running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// statusError is a non-2xx response from the server.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(bytes.TrimSpace(body))
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		return &statusError{Code: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func docPath(prefix, filename string, rest ...string) string {
	p := prefix + "/" + url.PathEscape(filename)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// remoteStore saves notes and reading progress through a running server.
type remoteStore struct {
	client *apiClient
}

func (r remoteStore) CreateNote(documentRef string, page int, title, content string) (storage.Note, error) {
	resp, err := r.client.post(context.Background(), "/notes", map[string]any{
		"pdf_filename": documentRef,
		"page_number":  page,
		"title":        title,
		"chat_content": content,
	})
	if err != nil {
		return storage.Note{}, err
	}
	var note storage.Note
	if err := decodeJSON(resp, &note); err != nil {
		return storage.Note{}, err
	}
	return note, nil
}

func (r remoteStore) GetProgress(documentRef string) (storage.Progress, error) {
	resp, err := r.client.get(context.Background(), docPath("/progress", documentRef))
	if err != nil {
		return storage.Progress{}, err
	}
	var p storage.Progress
	if err := decodeJSON(resp, &p); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return storage.Progress{}, storage.ErrNotFound
		}
		return storage.Progress{}, err
	}
	return p, nil
}

func (r remoteStore) SaveProgress(documentRef string, lastPage, totalPages int) error {
	resp, err := r.client.put(context.Background(), docPath("/progress", documentRef), map[string]int{
		"last_page":   lastPage,
		"total_pages": totalPages,
	})
	if err != nil {
		return err
	}
	var p storage.Progress
	return decodeJSON(resp, &p)
}

// streams returns an opener for the server's streaming endpoints.
func (c *apiClient) streams() *proxy.Client {
	pc := proxy.NewClient(c.baseURL)
	if c.streamTimeout > 0 {
		pc.WithStreamTimeout(c.streamTimeout)
	}
	return pc
}
