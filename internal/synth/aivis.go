package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/yomilabs/yomi-core/internal/config"
)

// AivisClient implements Synthesizer against the Aivis Cloud API.
type AivisClient struct {
	endpoint     string
	apiKey       string
	outputFormat string
	httpClient   *http.Client
}

type aivisRequest struct {
	ModelUUID    string  `json:"model_uuid"`
	Text         string  `json:"text"`
	OutputFormat string  `json:"output_format"`
	SpeakingRate float64 `json:"speaking_rate"`
}

// NewAivisClient creates a client with a pooled HTTP transport. The backend
// is a single host, so connections are kept alive between calls.
func NewAivisClient(cfg config.SynthesisConfig) *AivisClient {
	format := cfg.OutputFormat
	if format == "" {
		format = "mp3"
	}
	return &AivisClient{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		outputFormat: format,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}
}

// Synthesize posts the request and returns the encoded audio payload.
// Non-2xx responses become *BackendError; connectivity failures are
// wrapped transport errors.
func (c *AivisClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	payload := aivisRequest{
		ModelUUID:    req.ModelUUID,
		Text:         req.Text,
		OutputFormat: c.outputFormat,
		SpeakingRate: req.SpeakingRate,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call synthesis backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &BackendError{Status: resp.StatusCode, Body: string(diag)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	return audio, nil
}
