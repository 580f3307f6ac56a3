package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/sirupsen/logrus"
)

// remoteInpainter forwards to another server that speaks this service's
// /inpaint contract, typically a diffusers process on a GPU host.
type remoteInpainter struct {
	baseURL string
	client  *http.Client
}

func NewRemote(ctx context.Context, cfg config.RemoteConfig, client *http.Client) (Inpainter, error) {
	r := &remoteInpainter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote pipeline unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("remote", resp)
	}

	var health entity.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && !health.ModelLoaded {
		logrus.WithField("url", r.baseURL).Warn("remote pipeline reports model not loaded yet")
	}
	return r, nil
}

func (r *remoteInpainter) Name() string {
	return BackendRemote
}

func (r *remoteInpainter) Inpaint(ctx context.Context, req Request) ([]image.Image, error) {
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
			"prompt":              req.Prompt,
			"num_inference_steps": formatSteps(req.NumInferenceSteps),
			"guidance_scale":      formatGuidance(req.GuidanceScale),
		},
	)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/inpaint", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("remote", resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil, fmt.Errorf("expected JSON response but got %q", ct)
	}

	var result entity.InpaintResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode remote response: %w", err)
	}
	if !result.Success || result.ImageURL == "" {
		return nil, ErrNoOutput
	}

	img, err := decodeImageRef([]byte(result.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote image: %w", err)
	}
	return []image.Image{img}, nil
}
