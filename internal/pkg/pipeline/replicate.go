package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
	"github.com/sirupsen/logrus"
)

var ErrPredictionTimeout = errors.New("processing timeout")

type replicateInpainter struct {
	cfg    config.ReplicateConfig
	client *http.Client
}

type replicateInput struct {
	Image             string  `json:"image"`
	Mask              string  `json:"mask"`
	Prompt            string  `json:"prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumOutputs        int     `json:"num_outputs"`
	Scheduler         string  `json:"scheduler,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
}

type replicatePredictionRequest struct {
	Version string         `json:"version"`
	Input   replicateInput `json:"input"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func NewReplicate(cfg config.ReplicateConfig, client *http.Client) (Inpainter, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("replicate: %w", ErrMissingAPIKey)
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &replicateInpainter{cfg: cfg, client: client}, nil
}

func (r *replicateInpainter) Name() string {
	return BackendReplicate
}

func (r *replicateInpainter) Inpaint(ctx context.Context, req Request) ([]image.Image, error) {
	imagePNG, maskPNG, err := encodePair(req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(replicatePredictionRequest{
		Version: r.cfg.Version,
		Input: replicateInput{
			Image:             processor.DataURI(imagePNG),
			Mask:              processor.DataURI(maskPNG),
			Prompt:            req.Prompt,
			NumInferenceSteps: req.NumInferenceSteps,
			GuidanceScale:     req.GuidanceScale,
			NumOutputs:        1,
			Scheduler:         r.cfg.Scheduler,
			Width:             req.Width,
			Height:            req.Height,
		},
	})
	if err != nil {
		return nil, err
	}

	prediction, err := r.do(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/predictions", payload)
	if err != nil {
		return nil, err
	}
	logrus.WithField("prediction", prediction.ID).Info("replicate prediction created")

	for attempt := 0; ; attempt++ {
		switch prediction.Status {
		case "succeeded":
			return r.fetchOutputs(ctx, prediction.Output)
		case "failed", "canceled":
			if prediction.Error != nil {
				return nil, fmt.Errorf("replicate prediction %s: %v", prediction.Status, prediction.Error)
			}
			return nil, fmt.Errorf("replicate prediction %s", prediction.Status)
		}

		if attempt >= r.cfg.MaxPolls {
			return nil, ErrPredictionTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}

		prediction, err = r.do(ctx, http.MethodGet, r.cfg.BaseURL+"/v1/predictions/"+prediction.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("polling failed: %w", err)
		}
	}
}

func (r *replicateInpainter) do(ctx context.Context, method, url string, payload []byte) (*replicatePrediction, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+r.cfg.APIToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError("Replicate", resp)
	}

	var prediction replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return &prediction, nil
}

func (r *replicateInpainter) fetchOutputs(ctx context.Context, raw json.RawMessage) ([]image.Image, error) {
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("unexpected prediction output: %s", string(raw))
		}
		urls = []string{single}
	}
	if len(urls) == 0 {
		return nil, ErrNoOutput
	}

	images := make([]image.Image, 0, len(urls))
	for _, url := range urls {
		img, err := r.download(ctx, url)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func (r *replicateInpainter) download(ctx context.Context, url string) (image.Image, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeImageRef([]byte(url))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("Replicate", resp)
	}
	return processor.Decode(resp.Body)
}
