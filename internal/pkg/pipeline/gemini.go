package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const geminiInstruction = "Edit the first image. Repaint only the region that is black in the second image (the mask) " +
	"and keep every other pixel unchanged. Return the edited image at the same size. Content for the repainted region: "

type geminiInpainter struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg config.GeminiConfig) (Inpainter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiInpainter{client: client, model: cfg.Model}, nil
}

func (g *geminiInpainter) Name() string {
	return BackendGemini
}

// Inpaint sends prompt, image and mask as one multimodal turn. Gemini has no
// step count or guidance scale, so those only go to the log.
func (g *geminiInpainter) Inpaint(ctx context.Context, req Request) ([]image.Image, error) {
	imagePNG, maskPNG, err := encodePair(req)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"model":               g.model,
		"num_inference_steps": req.NumInferenceSteps,
		"guidance_scale":      req.GuidanceScale,
	}).Debug("gemini ignores diffusion parameters")

	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(geminiInstruction + req.Prompt),
			genai.NewPartFromBytes(imagePNG, "image/png"),
			genai.NewPartFromBytes(maskPNG, "image/png"),
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		})
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	var images []image.Image
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				continue
			}
			img, err := processor.Decode(bytes.NewReader(part.InlineData.Data))
			if err != nil {
				return nil, fmt.Errorf("failed to decode gemini image: %w", err)
			}
			if req.Width > 0 && req.Height > 0 {
				img = processor.ResizeTo(img, req.Width, req.Height)
			}
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoOutput
	}
	return images, nil
}
