// Package genai is a thin HTTP client for the hosted generative endpoints:
// a text/vision generateContent endpoint and an image predict endpoint.
// Failures are classified into the apperr taxonomy so callers never have to
// inspect response text to tell a block from an empty result.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/studysparkai/backend/internal/apperr"
	"github.com/studysparkai/backend/internal/logger"
)

// Part is one piece of a generation request or response: text, or inline
// binary data for vision input.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob carries base64-encoded bytes with their MIME type.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Schema constrains a structured model response, in the endpoint's own
// schema dialect (upper-case type names).
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// GenerationConfig requests structured output from the text endpoint.
type GenerationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type content struct {
	Parts []Part `json:"parts"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason        string `json:"blockReason"`
		BlockReasonMessage string `json:"blockReasonMessage"`
	} `json:"promptFeedback"`
}

type predictRequest struct {
	Instances []struct {
		Prompt string `json:"prompt"`
	} `json:"instances"`
	Parameters struct {
		SampleCount int `json:"sampleCount"`
	} `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the generation endpoints over HTTP. A weighted semaphore
// bounds concurrent upstream calls across the process.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
	baseURL    string
	apiKey     string
	textModel  string
	imageModel string
	sem        *semaphore.Weighted
}

func NewClient(log *logger.Logger, baseURL, apiKey, textModel, imageModel string, maxCalls int64) *Client {
	if maxCalls <= 0 {
		maxCalls = 8
	}
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log.With("component", "genai"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		textModel:  textModel,
		imageModel: imageModel,
		sem:        semaphore.NewWeighted(maxCalls),
	}
}

// GenerateContent issues one call to the text/vision endpoint and returns the
// first candidate's text.
func (c *Client) GenerateContent(ctx context.Context, parts []Part, cfg *GenerationConfig) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Transport, err, "encode request")
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.textModel)
	raw, err := c.post(ctx, path, body)
	if err != nil {
		return "", err
	}

	var result generateResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", apperr.Wrap(apperr.Empty, err, "decode response")
	}
	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		msg := fb.BlockReason
		if fb.BlockReasonMessage != "" {
			msg += ": " + fb.BlockReasonMessage
		}
		return "", apperr.New(apperr.Blocked, "request blocked by the provider (%s)", msg)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 ||
		result.Candidates[0].Content.Parts[0].Text == "" {
		return "", apperr.New(apperr.Empty, "response contained no usable content")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateImage issues one call to the image endpoint, requesting a single
// sample, and returns the decoded image bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	var req predictRequest
	req.Instances = append(req.Instances, struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt})
	req.Parameters.SampleCount = 1

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transport, err, "encode request")
	}

	path := fmt.Sprintf("/v1beta/models/%s:predict", c.imageModel)
	raw, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	var result predictResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperr.Wrap(apperr.Empty, err, "decode response")
	}
	if len(result.Predictions) == 0 || result.Predictions[0].BytesBase64Encoded == "" {
		return nil, apperr.New(apperr.Empty, "response contained no image")
	}
	img, err := base64.StdEncoding.DecodeString(result.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, apperr.Wrap(apperr.Empty, err, "decode image payload")
	}
	return img, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.Transport, err, "waiting for a request slot")
	}
	defer c.sem.Release(1)

	url := c.baseURL + path + "?key=" + c.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.Transport, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transport, err, "call %s", path)
	}
	defer resp.Body.Close()
	c.log.Debug("upstream call", "path", path, "status", resp.StatusCode, "took", time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transport, err, "read response from %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		msg := ""
		if json.Unmarshal(raw, &ae) == nil {
			msg = ae.Error.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, apperr.New(apperr.Transport, "%s returned %d: %s", path, resp.StatusCode, msg)
	}
	return raw, nil
}
