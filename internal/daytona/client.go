package daytona

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultAPIURL = "https://app.daytona.io/api"

	EnvAPIKey = "DAYTONA_API_KEY"
	EnvAPIURL = "DAYTONA_API_URL"

	trailerExitCode  = "X-Exit-Code"
	trailerExecError = "X-Exec-Error"
)

var ErrAPIKeyMissing = errors.New("daytona API key not found in environment variable DAYTONA_API_KEY")

// APIError carries a non-2xx response. Error() is the server's own message,
// so refusals like "quota exceeded" surface verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

type Client struct {
	apiURL string
	apiKey string
	httpc  *http.Client
}

type CreateOptions struct {
	Language          string
	AutoStopMinutes   int
	AutoDeleteMinutes int
	Labels            map[string]string
}

type ExecResult struct {
	ExitCode int
	Error    string
}

func NewClient(apiURL, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyMissing
	}
	base := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if base == "" {
		base = DefaultAPIURL
	}
	// No client-wide timeout: Exec responses stream for as long as the
	// remote program runs. Cancellation, when wanted, comes via ctx.
	return &Client{
		apiURL: base,
		apiKey: strings.TrimSpace(apiKey),
		httpc:  &http.Client{},
	}, nil
}

func NewClientFromEnv() (*Client, error) {
	return NewClient(os.Getenv(EnvAPIURL), os.Getenv(EnvAPIKey))
}

func (c *Client) APIURL() string {
	return c.apiURL
}

func (c *Client) Create(ctx context.Context, opts CreateOptions) (string, error) {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "python"
	}
	body := map[string]any{
		"language":           language,
		"autoStopInterval":   opts.AutoStopMinutes,
		"autoDeleteInterval": opts.AutoDeleteMinutes,
	}
	if len(opts.Labels) > 0 {
		body["labels"] = opts.Labels
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/sandbox", body, &created); err != nil {
		return "", err
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", fmt.Errorf("create sandbox: response missing sandbox id")
	}
	return created.ID, nil
}

func (c *Client) Upload(ctx context.Context, sandboxID, remotePath string, data []byte) error {
	if strings.TrimSpace(sandboxID) == "" {
		return fmt.Errorf("sandbox id is required")
	}
	if strings.TrimSpace(remotePath) == "" {
		return fmt.Errorf("remote path is required")
	}

	endpoint := fmt.Sprintf("%s/sandbox/%s/files/upload?path=%s",
		c.apiURL, url.PathEscape(sandboxID), url.QueryEscape(remotePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	return nil
}

// Exec starts the command and returns its stdout as a live stream. The exit
// status travels in HTTP trailers and is readable via Result once the body
// has been consumed to EOF.
func (c *Client) Exec(ctx context.Context, sandboxID, command string) (*Execution, error) {
	if strings.TrimSpace(sandboxID) == "" {
		return nil, fmt.Errorf("sandbox id is required")
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	payload, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return nil, fmt.Errorf("marshal exec request: %w", err)
	}
	endpoint := c.apiURL + "/sandbox/" + url.PathEscape(sandboxID) + "/exec/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build exec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("exec in sandbox %s: %w", sandboxID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, apiError(resp)
	}
	return &Execution{resp: resp}, nil
}

func (c *Client) Delete(ctx context.Context, sandboxID string) error {
	if strings.TrimSpace(sandboxID) == "" {
		return fmt.Errorf("sandbox id is required")
	}
	endpoint := c.apiURL + "/sandbox/" + url.PathEscape(sandboxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("delete sandbox %s: %w", sandboxID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		// already gone, nothing to delete
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("reach daytona API: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	return nil
}

type Execution struct {
	resp *http.Response
}

func (e *Execution) Read(p []byte) (int, error) {
	return e.resp.Body.Read(p)
}

func (e *Execution) Close() error {
	return e.resp.Body.Close()
}

// Result reports how the remote command ended. Trailers only exist after the
// response body hit EOF; before that the exit status is simply not known.
func (e *Execution) Result() (ExecResult, error) {
	raw := strings.TrimSpace(e.resp.Trailer.Get(trailerExitCode))
	if raw == "" {
		return ExecResult{}, fmt.Errorf("execution finished without reporting exit status")
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return ExecResult{}, fmt.Errorf("invalid exit status %q", raw)
	}
	return ExecResult{
		ExitCode: code,
		Error:    strings.TrimSpace(e.resp.Trailer.Get(trailerExecError)),
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.httpc.Do(req)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if strings.TrimSpace(body.Message) != "" {
			msg = strings.TrimSpace(body.Message)
		} else if strings.TrimSpace(body.Error) != "" {
			msg = strings.TrimSpace(body.Error)
		}
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
