package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SyncClient handles API calls to the inventory synchronizer's HTTP server.
type SyncClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSyncClient creates a new client with the given base URL.
func NewSyncClient(baseURL string) *SyncClient {
	return &SyncClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// QueueStats mirrors the server's queue depth summary.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// DLQJob mirrors a dead-lettered job as returned by the server.
type DLQJob struct {
	ID          string    `json:"id"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
	LastError   string    `json:"last_error"`
}

func (c *SyncClient) get(path string, out any) error {
	httpReq, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s", c.BaseURL, path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// GetQueueStats sends GET /queue/stats.
func (c *SyncClient) GetQueueStats() (*QueueStats, error) {
	var stats QueueStats
	if err := c.get("/queue/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListDLQ sends GET /queue/dlq.
func (c *SyncClient) ListDLQ() ([]DLQJob, error) {
	var out struct {
		Jobs []DLQJob `json:"jobs"`
	}
	if err := c.get("/queue/dlq", &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// TriggerPoll sends POST /trigger-poll to kick off an out-of-band poll cycle.
func (c *SyncClient) TriggerPoll() error {
	httpReq, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/trigger-poll", c.BaseURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return nil
}
