// Package pipeline wraps the generative inpainting capability behind a single
// interface and owns its process-wide handle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/ds124wfegd/inpainting/config"
)

const (
	BackendBuiltin     = "builtin"
	BackendRemote      = "remote"
	BackendReplicate   = "replicate"
	BackendHuggingFace = "huggingface"
	BackendGemini      = "gemini"
)

var (
	ErrUnknownBackend   = errors.New("unknown pipeline backend")
	ErrNoOutput         = errors.New("pipeline produced no images")
	ErrMaskSizeMismatch = errors.New("mask size does not match image size")
	ErrMissingAPIKey    = errors.New("api key is not configured")
)

// Request is everything the model needs for one inpainting call.
// Width and Height are the resolved model dimensions of Image.
type Request struct {
	Image             image.Image
	Mask              image.Image
	Prompt            string
	NumInferenceSteps int
	GuidanceScale     float64
	Width             int
	Height            int
}

type Inpainter interface {
	Inpaint(ctx context.Context, req Request) ([]image.Image, error)
	Name() string
}

// Factory loads a backend. It is called at most once per successful load.
type Factory func(ctx context.Context) (Inpainter, error)

func NewFactory(cfg config.PipelineConfig) (Factory, error) {
	switch cfg.Backend {
	case BackendBuiltin, "":
		return func(ctx context.Context) (Inpainter, error) {
			return NewBuiltin(), nil
		}, nil
	case BackendRemote:
		return func(ctx context.Context) (Inpainter, error) {
			return NewRemote(ctx, cfg.Remote, &http.Client{Timeout: cfg.Remote.Timeout})
		}, nil
	case BackendReplicate:
		return func(ctx context.Context) (Inpainter, error) {
			return NewReplicate(cfg.Replicate, http.DefaultClient)
		}, nil
	case BackendHuggingFace:
		return func(ctx context.Context) (Inpainter, error) {
			return NewHuggingFace(cfg.HuggingFace, http.DefaultClient)
		}, nil
	case BackendGemini:
		return func(ctx context.Context) (Inpainter, error) {
			return NewGemini(ctx, cfg.Gemini)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
