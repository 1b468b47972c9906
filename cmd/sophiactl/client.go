package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// apiClient is a minimal HTTP client for the operator API, built fresh
// from a command's persistent flags on every invocation.
type apiClient struct {
	baseURL string
	token   string
	client  string
	http    *http.Client
}

// apiError wraps a non-2xx response from the server.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.body)
}

// unavailableError wraps a transport-level failure: the server could not
// be reached at all.
type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return fmt.Sprintf("sophia server unavailable: %v", e.err) }
func (e *unavailableError) Unwrap() error  { return e.err }

func clientFromCmd(cmd *cobra.Command) *apiClient {
	baseURL, _ := cmd.Flags().GetString("base-url")
	token, _ := cmd.Flags().GetString("token")
	clientID, _ := cmd.Flags().GetString("client")
	return &apiClient{
		baseURL: baseURL,
		token:   token,
		client:  clientID,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &unavailableError{err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &apiError{status: resp.StatusCode, body: string(respBody)}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// exitFromError maps an error returned from an API call to the CLI's exit
// code contract: 4 for a 409 conflict, 3 for an unreachable server or any
// other non-2xx API response, 2 for anything else (argument validation).
func exitFromError(err error) int {
	var apiErr *apiError
	var unavailable *unavailableError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.status == http.StatusConflict {
			return exitConflict
		}
		return exitStoreUnavailable
	case errors.As(err, &unavailable):
		return exitStoreUnavailable
	default:
		return exitInvalidArgs
	}
}
