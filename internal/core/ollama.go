package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const maxStreamLineBytes = 1 << 20 // continuation token arrays can get large

// OllamaClient talks to an Ollama server over its /api/generate endpoint,
// either as a single JSON response or as a newline-delimited chunk stream.
type OllamaClient struct {
	baseURL string
	model   string
	numGPU  int
	client  *http.Client
	logger  *logrus.Logger
}

func NewOllamaClient(baseURL, model string, timeout time.Duration, numGPU int, logger *logrus.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		numGPU:  numGPU,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GenerateRequest is one outbound turn. Context is the opaque continuation
// token from a previous turn; it is forwarded verbatim and omitted when nil.
type GenerateRequest struct {
	Prompt      string
	System      string
	Context     json.RawMessage
	Temperature float64
}

// CompleteResult is a finished non-streaming generation.
type CompleteResult struct {
	Text  string
	Token json.RawMessage
}

// Chunk is one incremental piece of generated text. The terminal chunk has
// Done set and may carry a continuation token.
type Chunk struct {
	Text  string
	Done  bool
	Token json.RawMessage
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
	Context json.RawMessage        `json:"context,omitempty"`
}

type generateResponse struct {
	Response string          `json:"response"`
	Done     bool            `json:"done"`
	Context  json.RawMessage `json:"context,omitempty"`
}

func (c *OllamaClient) buildPayload(req GenerateRequest, stream bool) generateRequest {
	options := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if c.numGPU > 0 {
		options["num_gpu"] = c.numGPU
	}
	return generateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  stream,
		Options: options,
		Context: req.Context,
	}
}

func (c *OllamaClient) post(ctx context.Context, req GenerateRequest, stream bool) (*http.Response, error) {
	payload := c.buildPayload(req, stream)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &BackendHTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return resp, nil
}

// Generate performs a single-shot generation and returns the full text plus
// any continuation token the backend emitted.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*CompleteResult, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendProtocol, err)
	}

	return &CompleteResult{Text: genResp.Response, Token: genResp.Context}, nil
}

// GenerateStream starts a streamed generation. The returned stream must be
// consumed on a single goroutine and closed by the caller.
func (c *OllamaClient) GenerateStream(ctx context.Context, req GenerateRequest) (*ChunkStream, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

	return &ChunkStream{
		body:    resp.Body,
		scanner: scanner,
		logger:  c.logger,
	}, nil
}

// ChunkStream is a lazy, finite, non-restartable sequence of chunks decoded
// from the backend's newline-delimited JSON body.
type ChunkStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *logrus.Logger
	done    bool
}

// Recv returns the next chunk. It returns io.EOF once the underlying body is
// exhausted, and a backend error if the transport fails mid-stream. Malformed
// lines are skipped, not fatal.
func (s *ChunkStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var genResp generateResponse
		if err := json.Unmarshal(line, &genResp); err != nil {
			s.logger.WithError(err).Warn("skipping malformed stream line")
			continue
		}
		if genResp.Done {
			s.done = true
		}
		return Chunk{Text: genResp.Response, Done: genResp.Done, Token: genResp.Context}, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return Chunk{}, classifyTransportError(err)
	}
	return Chunk{}, io.EOF
}

// Close releases the underlying connection. Closing before the terminal chunk
// aborts the upstream generation.
func (s *ChunkStream) Close() error {
	return s.body.Close()
}

func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}
