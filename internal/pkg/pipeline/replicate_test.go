package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replicateConfig(baseURL string) config.ReplicateConfig {
	return config.ReplicateConfig{
		BaseURL:      baseURL,
		APIToken:     "r8_test",
		Version:      "v1",
		Scheduler:    "K_EULER",
		PollInterval: time.Millisecond,
		MaxPolls:     5,
	}
}

func TestReplicateInpaintPollsUntilSucceeded(t *testing.T) {
	outputPNG, err := processor.EncodePNG(whiteImage(64, 64))
	require.NoError(t, err)

	var polls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token r8_test", r.Header.Get("Authorization"))

		var body replicatePredictionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v1", body.Version)
		assert.Equal(t, "fill", body.Input.Prompt)
		assert.Equal(t, 20, body.Input.NumInferenceSteps)
		assert.Equal(t, 7.5, body.Input.GuidanceScale)
		assert.Equal(t, 1, body.Input.NumOutputs)
		assert.Equal(t, 64, body.Input.Width)
		assert.Contains(t, body.Input.Mask, "data:image/png;base64,")

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(replicatePrediction{ID: "abc", Status: "starting"})
	})
	mux.HandleFunc("GET /v1/predictions/abc", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			json.NewEncoder(w).Encode(replicatePrediction{ID: "abc", Status: "processing"})
			return
		}
		output, _ := json.Marshal([]string{srv.URL + "/files/out.png"})
		json.NewEncoder(w).Encode(replicatePrediction{ID: "abc", Status: "succeeded", Output: output})
	})
	mux.HandleFunc("GET /files/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(outputPNG)
	})

	r, err := NewReplicate(replicateConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	out, err := r.Inpaint(context.Background(), Request{
		Image: whiteImage(64, 64), Mask: whiteImage(64, 64),
		Prompt: "fill", NumInferenceSteps: 20, GuidanceScale: 7.5, Width: 64, Height: 64,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(3), polls.Load())
}

func TestReplicateInpaintFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		errorMsg any
		contains string
	}{
		{name: "failed with message", status: "failed", errorMsg: "NSFW content detected", contains: "NSFW content detected"},
		{name: "canceled", status: "canceled", contains: "canceled"},
		{name: "never finishes", status: "processing", contains: ErrPredictionTimeout.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(replicatePrediction{ID: "x", Status: tt.status, Error: tt.errorMsg})
			}))
			defer srv.Close()

			r, err := NewReplicate(replicateConfig(srv.URL), srv.Client())
			require.NoError(t, err)

			_, err = r.Inpaint(context.Background(), Request{
				Image: whiteImage(64, 64), Mask: whiteImage(64, 64), NumInferenceSteps: 20, GuidanceScale: 7.5,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestReplicateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid token."}`))
	}))
	defer srv.Close()

	r, err := NewReplicate(replicateConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	_, err = r.Inpaint(context.Background(), Request{
		Image: whiteImage(64, 64), Mask: whiteImage(64, 64), NumInferenceSteps: 20, GuidanceScale: 7.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token.")
}
