package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tatianab/adventure-gm/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMIMEType string `json:"outputMimeType"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MIMEType           string `json:"mimeType"`
	} `json:"predictions"`
}

func (e *Engine) imageHTTPClient(ctx context.Context) (*http.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.httpClient != nil {
		return e.httpClient, nil
	}
	if e.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, _, err := htransport.NewClient(ctx, option.WithAPIKey(e.opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create image client: %w", err)
	}
	e.httpClient = client
	return client, nil
}

// GenerateImage asks Imagen for one picture of prompt. A response without
// image data returns (nil, nil).
func (e *Engine) GenerateImage(ctx context.Context, prompt string) (*models.SceneImage, error) {
	client, err := e.imageHTTPClient(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1, OutputMIMEType: "image/jpeg"},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:predict", strings.TrimRight(e.opts.ImageEndpoint, "/"), e.opts.ImageModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, classifyError(err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image response: %w", err)
	}

	var pr predictResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(pr.Predictions) == 0 || pr.Predictions[0].BytesBase64Encoded == "" {
		e.logger.Warn().Str("model", e.opts.ImageModel).Msg("image response carried no image data")
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(pr.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image bytes: %w", err)
	}

	mime := pr.Predictions[0].MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &models.SceneImage{MIMEType: mime, Data: raw}, nil
}
