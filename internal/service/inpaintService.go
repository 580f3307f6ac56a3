package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"runtime/debug"
	"time"

	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/ds124wfegd/inpainting/internal/pkg/pipeline"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (s *inpaintService) Inpaint(ctx context.Context, image, mask io.Reader, params entity.GenerationParams) (*entity.InpaintResult, error) {
	start := time.Now()
	record := &entity.InpaintRecord{
		ID:                uuid.New().String(),
		Prompt:            params.Prompt,
		NumInferenceSteps: params.NumInferenceSteps,
		GuidanceScale:     params.GuidanceScale,
		CreatedAt:         start.UTC(),
	}

	result, pngData, err := s.run(ctx, image, mask, params, record)

	record.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		record.Status = entity.StatusFailed
		record.Error = err.Error()
	} else {
		record.Status = entity.StatusCompleted
		if s.repo != nil {
			result.ID = record.ID
		}
	}
	s.persist(ctx, record, pngData)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *inpaintService) run(ctx context.Context, image, mask io.Reader, params entity.GenerationParams, record *entity.InpaintRecord) (*entity.InpaintResult, []byte, error) {
	pipe, err := s.loader.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	record.Backend = pipe.Name()

	originalImage, err := processor.Decode(image)
	if err != nil {
		return nil, nil, fmt.Errorf("image: %w", err)
	}
	maskImage, err := processor.Decode(mask)
	if err != nil {
		return nil, nil, fmt.Errorf("mask: %w", err)
	}

	resizedImage, err := processor.ResizeToModelSize(originalImage)
	if err != nil {
		return nil, nil, err
	}
	width, height := resizedImage.Bounds().Dx(), resizedImage.Bounds().Dy()
	// the mask must line up with the image pixel for pixel
	resizedMask := processor.ResizeTo(maskImage, width, height)
	record.Width, record.Height = width, height

	outputs, err := s.invoke(ctx, pipe, pipeline.Request{
		Image:             resizedImage,
		Mask:              resizedMask,
		Prompt:            params.Prompt,
		NumInferenceSteps: params.NumInferenceSteps,
		GuidanceScale:     params.GuidanceScale,
		Width:             width,
		Height:            height,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(outputs) == 0 {
		return nil, nil, pipeline.ErrNoOutput
	}

	pngData, err := processor.EncodePNG(outputs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"id":      record.ID,
		"backend": record.Backend,
		"width":   width,
		"height":  height,
	}).Info("inpainting completed")

	return &entity.InpaintResult{
		ImageURL: processor.DataURI(pngData),
		Width:    width,
		Height:   height,
	}, pngData, nil
}

// invoke runs the backend inside a concurrency slot. A panicking backend
// gives its slot back and surfaces as an error.
func (s *inpaintService) invoke(ctx context.Context, pipe pipeline.Inpainter, req pipeline.Request) (outputs []image.Image, err error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("backend", pipe.Name()).Errorf("pipeline panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
	}()

	return pipe.Inpaint(ctx, req)
}

// persist archives and publishes the outcome. Neither may fail the request.
func (s *inpaintService) persist(ctx context.Context, record *entity.InpaintRecord, pngData []byte) {
	log := logrus.WithField("id", record.ID)

	if s.repo != nil {
		if pngData != nil {
			if err := s.repo.SaveResult(record.ID, bytes.NewReader(pngData)); err != nil {
				log.WithError(err).Warn("failed to archive result image")
			}
		}
		if err := s.repo.Save(record); err != nil {
			log.WithError(err).Warn("failed to archive inpaint record")
		}
	}

	if s.producer != nil {
		if err := s.producer.SendMessage(context.WithoutCancel(ctx), record.ID, record); err != nil {
			log.WithError(err).Warn("failed to publish inpaint event")
		}
	}
}

func (s *inpaintService) ModelLoaded() bool {
	return s.loader.Loaded()
}

func (s *inpaintService) GetResult(id string) (*entity.InpaintRecord, error) {
	if s.repo == nil {
		return nil, ErrArchiveDisabled
	}
	return s.repo.FindByID(id)
}

func (s *inpaintService) GetResultImage(id string) (io.ReadCloser, error) {
	if s.repo == nil {
		return nil, ErrArchiveDisabled
	}
	return s.repo.OpenResult(id)
}

func (s *inpaintService) DeleteResult(id string) error {
	if s.repo == nil {
		return ErrArchiveDisabled
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	logrus.WithField("id", id).Info("archived result deleted")
	return nil
}
