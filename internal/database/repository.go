package database

import (
	"errors"
	"io"

	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/ds124wfegd/inpainting/internal/pkg/storage"
)

var ErrRecordNotFound = errors.New("inpaint record not found")

type InpaintRepository interface {
	Save(record *entity.InpaintRecord) error
	FindByID(id string) (*entity.InpaintRecord, error)
	SaveResult(id string, png io.Reader) error
	OpenResult(id string) (io.ReadCloser, error)
	Delete(id string) error
}

type fileInpaintRepository struct {
	storage storage.FileStorage
}
