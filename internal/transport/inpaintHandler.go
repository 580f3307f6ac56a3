package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ds124wfegd/inpainting/internal/database"
	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/ds124wfegd/inpainting/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *InpaintHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, entity.HealthResponse{
		Status:      "healthy",
		ModelLoaded: h.service.ModelLoaded(),
	})
}

// Inpaint answers 200 with a data URI, or 500 with the failure text for any
// problem: missing or undecodable uploads, bad numbers, pipeline errors.
func (h *InpaintHandler) Inpaint(c *gin.Context) {
	params, err := parseGenerationParams(c)
	if err != nil {
		processingFailure(c, err)
		return
	}

	imageFile, err := c.FormFile("image")
	if err != nil {
		processingFailure(c, fmt.Errorf("image: %w", err))
		return
	}
	maskFile, err := c.FormFile("mask")
	if err != nil {
		processingFailure(c, fmt.Errorf("mask: %w", err))
		return
	}

	image, err := imageFile.Open()
	if err != nil {
		processingFailure(c, err)
		return
	}
	defer image.Close()

	mask, err := maskFile.Open()
	if err != nil {
		processingFailure(c, err)
		return
	}
	defer mask.Close()

	result, err := h.service.Inpaint(c.Request.Context(), image, mask, params)
	if err != nil {
		processingFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, entity.InpaintResponse{
		Success:  true,
		ImageURL: result.ImageURL,
		Message:  "Image processed successfully",
		ID:       result.ID,
	})
}

func (h *InpaintHandler) GetResult(c *gin.Context) {
	record, err := h.service.GetResult(c.Param("id"))
	if err != nil {
		lookupFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *InpaintHandler) GetResultImage(c *gin.Context) {
	reader, err := h.service.GetResultImage(c.Param("id"))
	if err != nil {
		lookupFailure(c, err)
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, entity.ErrorResponse{Detail: err.Error()})
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}

func (h *InpaintHandler) DeleteResult(c *gin.Context) {
	if err := h.service.DeleteResult(c.Param("id")); err != nil {
		lookupFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, entity.MessageResponse{Message: "Result deleted successfully"})
}

// formValue returns a form field, treating a blank value the same as a missing one.
func formValue(c *gin.Context, key string) (string, bool) {
	raw, ok := c.GetPostForm(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return raw, true
}

func parseGenerationParams(c *gin.Context) (entity.GenerationParams, error) {
	params := entity.DefaultGenerationParams()
	if prompt, ok := formValue(c, "prompt"); ok {
		params.Prompt = prompt
	}

	if raw, ok := formValue(c, "num_inference_steps"); ok {
		steps, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return params, fmt.Errorf("invalid num_inference_steps %q: %w", raw, err)
		}
		params.NumInferenceSteps = steps
	}

	if raw, ok := formValue(c, "guidance_scale"); ok {
		scale, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return params, fmt.Errorf("invalid guidance_scale %q: %w", raw, err)
		}
		params.GuidanceScale = scale
	}

	return params, nil
}

func processingFailure(c *gin.Context, err error) {
	detail := "Error processing image: " + err.Error()
	logrus.WithError(err).Error("Error processing image")
	c.JSON(http.StatusInternalServerError, entity.ErrorResponse{Detail: detail})
}

// recoverFailure turns a panic anywhere in a handler into a ProcessingFailure.
func recoverFailure(c *gin.Context, recovered any) {
	processingFailure(c, fmt.Errorf("panic: %v", recovered))
	c.Abort()
}

func lookupFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, entity.ErrorResponse{Detail: "Result not found"})
	case errors.Is(err, service.ErrArchiveDisabled):
		c.JSON(http.StatusNotFound, entity.ErrorResponse{Detail: "Result archive is disabled"})
	default:
		c.JSON(http.StatusInternalServerError, entity.ErrorResponse{Detail: err.Error()})
	}
}
