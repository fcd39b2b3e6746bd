package notegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/TobiasKell/NoteMorph/internal/pkg/env"
)

// Generator transforms note content through the external completion
// provider. The provider itself is out of scope; this is its interface.
type Generator interface {
	Transform(ctx context.Context, instruction, content string) (string, error)
}

// HTTPGenerator calls the configured completion endpoint.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewFromEnv builds a generator from COMPLETION_API_URL / COMPLETION_API_KEY.
func NewFromEnv() *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: env.GetEnv("COMPLETION_API_URL", ""),
		apiKey:   env.GetEnv("COMPLETION_API_KEY", ""),
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type completionRequest struct {
	Instruction string `json:"instruction"`
	Content     string `json:"content"`
}

type completionResponse struct {
	Output string `json:"output"`
}

func (g *HTTPGenerator) Transform(ctx context.Context, instruction, content string) (string, error) {
	body, err := json.Marshal(completionRequest{Instruction: instruction, Content: content})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion provider returned status %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Output, nil
}
