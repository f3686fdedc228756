// Package common provides shared test utilities for smartspec-service
// black-box integration tests. Each test builds the repository's
// Dockerfile, starts an isolated container, and drives it over HTTP
// exactly like any other client would.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var projectRoot string

// getProjectRoot finds the repository root by walking up looking for go.mod.
func getProjectRoot() string {
	if projectRoot != "" {
		return projectRoot
	}

	dir, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			projectRoot = dir
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			projectRoot, _ = os.Getwd()
			return projectRoot
		}
		dir = parent
	}
}

// Env is an isolated black-box test environment: one smartspec-service
// container, its own results directory, and an HTTP client pointed at its
// mapped port.
type Env struct {
	T          *testing.T
	Name       string
	Root       string
	ResultsDir string
	BaseURL    string

	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
}

// NewEnv prepares a smartspec-service test environment for the named test.
// Call Start to build the repository's Dockerfile and run the container.
func NewEnv(t *testing.T, testName string) *Env {
	t.Helper()

	root := getProjectRoot()
	resultsDir := filepath.Join(root, "tests", "results", testName)
	os.RemoveAll(resultsDir)
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		t.Fatalf("create results dir: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	return &Env{
		T:          t,
		Name:       testName,
		Root:       root,
		ResultsDir: resultsDir,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start builds the repository's Dockerfile, launches the container, and
// waits for it to answer /health.
func (e *Env) Start() error {
	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:       e.Root,
			Dockerfile:    "Dockerfile",
			PrintBuildLog: true,
		},
		ExposedPorts: []string{"8430/tcp"},
		Env: map[string]string{
			"SMARTSPEC_HOST": "0.0.0.0",
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8430/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(e.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return fmt.Errorf("start smartspec-service: %w", err)
	}

	mapped, err := container.MappedPort(e.ctx, "8430/tcp")
	if err != nil {
		container.Terminate(e.ctx)
		return fmt.Errorf("get mapped port: %w", err)
	}
	host, err := container.Host(e.ctx)
	if err != nil {
		container.Terminate(e.ctx)
		return fmt.Errorf("get container host: %w", err)
	}

	e.container = container
	e.BaseURL = fmt.Sprintf("http://%s:%s", host, mapped.Port())
	e.Log("smartspec-service reachable at %s", e.BaseURL)
	return nil
}

// Stop terminates the container.
func (e *Env) Stop() {
	defer e.cancel()
	if e.container != nil {
		e.container.Terminate(e.ctx)
	}
}

// Log writes a timestamped line to both the results log and the test's own log.
func (e *Env) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))

	logPath := filepath.Join(e.ResultsDir, "test.log")
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		f.WriteString(msg)
		f.Close()
	}

	if e.T != nil {
		e.T.Log(strings.TrimSpace(msg))
	}
}

// SaveJSON writes a value to the results directory as indented JSON.
func (e *Env) SaveJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.ResultsDir, name), data, 0644)
}

// HTTPClient drives requests against an Env's base URL.
type HTTPClient struct {
	env    *Env
	client *http.Client
}

// NewHTTPClient creates an HTTP client scoped to this environment.
func (e *Env) NewHTTPClient() *HTTPClient {
	return &HTTPClient{env: e, client: &http.Client{Timeout: 30 * time.Second}}
}

// Get performs a GET request.
func (c *HTTPClient) Get(path string) (*http.Response, []byte, error) {
	return c.Do(http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(path string, body interface{}) (*http.Response, []byte, error) {
	return c.Do(http.MethodPost, path, body)
}

// Do performs an HTTP request against the environment's service.
func (c *HTTPClient) Do(method, path string, body interface{}) (*http.Response, []byte, error) {
	url := c.env.BaseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.env.Log("%s %s", method, path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}

	c.env.Log("response: %d %s", resp.StatusCode, string(respBody))
	return resp, respBody, nil
}

// WaitFor polls check until it returns true or timeout elapses.
func WaitFor(timeout time.Duration, check func() bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if check() {
				return true
			}
		}
	}
}

// AssertJSON parses a JSON object response, failing the test on error.
func AssertJSON(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("parse JSON: %v\ndata: %s", err, string(data))
	}
	return result
}

// AssertStatusCode fails the test if resp's status code doesn't match expected.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp == nil {
		t.Errorf("expected status %d, got nil response", expected)
		return
	}
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
