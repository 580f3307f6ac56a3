package entity

import "time"

const (
	DefaultPrompt            = "high quality, photorealistic, detailed"
	DefaultNumInferenceSteps = 20
	DefaultGuidanceScale     = 7.5
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type GenerationParams struct {
	Prompt            string  `json:"prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Prompt:            DefaultPrompt,
		NumInferenceSteps: DefaultNumInferenceSteps,
		GuidanceScale:     DefaultGuidanceScale,
	}
}

type InpaintResult struct {
	ID       string
	ImageURL string
	Width    int
	Height   int
}

// InpaintRecord is both the archived metadata of a request and the event published for it.
type InpaintRecord struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Backend           string    `json:"backend"`
	Prompt            string    `json:"prompt"`
	NumInferenceSteps int       `json:"num_inference_steps"`
	GuidanceScale     float64   `json:"guidance_scale"`
	Width             int       `json:"width,omitempty"`
	Height            int       `json:"height,omitempty"`
	DurationMs        int64     `json:"duration_ms"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type InpaintResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"image_url"`
	Message  string `json:"message"`
	ID       string `json:"id,omitempty"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
