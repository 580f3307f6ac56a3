package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
)

type huggingFaceInpainter struct {
	cfg    config.HuggingFaceConfig
	client *http.Client
}

func NewHuggingFace(cfg config.HuggingFaceConfig, client *http.Client) (Inpainter, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("huggingface: %w", ErrMissingAPIKey)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &huggingFaceInpainter{cfg: cfg, client: client}, nil
}

func (h *huggingFaceInpainter) Name() string {
	return BackendHuggingFace
}

func (h *huggingFaceInpainter) Inpaint(ctx context.Context, req Request) ([]image.Image, error) {
	imagePNG, maskPNG, err := encodePair(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := multipartBody(
		[]formFile{
			{field: "image", filename: "image.png", data: imagePNG},
			{field: "mask", filename: "mask.png", data: maskPNG},
		},
		map[string]string{
			"inputs":              req.Prompt,
			"num_inference_steps": formatSteps(req.NumInferenceSteps),
			"guidance_scale":      formatGuidance(req.GuidanceScale),
		},
	)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+"/models/"+h.cfg.Model, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+h.cfg.APIToken)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Hugging Face request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("Hugging Face", resp)
	}

	// the inference API answers 200 with a JSON error while a model is loading
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
			return nil, fmt.Errorf("Hugging Face error: %s", payload.Error)
		}
		return nil, fmt.Errorf("unexpected Hugging Face response: %s", strings.TrimSpace(string(data)))
	}

	img, err := processor.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return []image.Image{img}, nil
}
