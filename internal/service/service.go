package service

import (
	"context"
	"errors"
	"io"

	"github.com/ds124wfegd/inpainting/internal/database"
	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/ds124wfegd/inpainting/internal/pkg/kafka"
	"github.com/ds124wfegd/inpainting/internal/pkg/pipeline"
	"golang.org/x/sync/semaphore"
)

var (
	ErrArchiveDisabled = errors.New("result archive is disabled")
	ErrPipelinePanic   = errors.New("pipeline panicked")
)

type InpaintService interface {
	Inpaint(ctx context.Context, image, mask io.Reader, params entity.GenerationParams) (*entity.InpaintResult, error)
	ModelLoaded() bool
	GetResult(id string) (*entity.InpaintRecord, error)
	GetResultImage(id string) (io.ReadCloser, error)
	DeleteResult(id string) error
}

type inpaintService struct {
	loader   *pipeline.Loader
	slots    *semaphore.Weighted
	repo     database.InpaintRepository
	producer kafka.Producer
}

// NewInpaintService wires the pipeline handle. repo may be nil when archiving
// is disabled. maxConcurrency bounds simultaneous pipeline invocations.
func NewInpaintService(loader *pipeline.Loader, maxConcurrency int64, repo database.InpaintRepository, producer kafka.Producer) InpaintService {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &inpaintService{
		loader:   loader,
		slots:    semaphore.NewWeighted(maxConcurrency),
		repo:     repo,
		producer: producer,
	}
}
