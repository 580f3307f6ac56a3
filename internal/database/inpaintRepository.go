package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/ds124wfegd/inpainting/internal/pkg/storage"
	"github.com/google/uuid"
)

func NewInpaintRepository(storage storage.FileStorage) InpaintRepository {
	return &fileInpaintRepository{storage: storage}
}

func (r *fileInpaintRepository) Save(record *entity.InpaintRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return r.storage.Save(metadataPath(record.ID), bytes.NewReader(data))
}

func (r *fileInpaintRepository) FindByID(id string) (*entity.InpaintRecord, error) {
	if !validID(id) || !r.storage.Exists(metadataPath(id)) {
		return nil, ErrRecordNotFound
	}

	reader, err := r.storage.Get(metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	defer reader.Close()

	var record entity.InpaintRecord
	if err := json.NewDecoder(reader).Decode(&record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *fileInpaintRepository) SaveResult(id string, png io.Reader) error {
	return r.storage.Save(resultPath(id), png)
}

func (r *fileInpaintRepository) OpenResult(id string) (io.ReadCloser, error) {
	if !validID(id) || !r.storage.Exists(resultPath(id)) {
		return nil, ErrRecordNotFound
	}

	reader, err := r.storage.Get(resultPath(id))
	if os.IsNotExist(err) {
		return nil, ErrRecordNotFound
	}
	return reader, err
}

func (r *fileInpaintRepository) Delete(id string) error {
	if !validID(id) {
		return ErrRecordNotFound
	}

	err := r.storage.Delete(metadataPath(id))
	if os.IsNotExist(err) {
		return ErrRecordNotFound
	}
	if err != nil {
		return err
	}

	if err := r.storage.Delete(resultPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ids are generated as UUIDs; anything else never reaches the filesystem
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func metadataPath(id string) string {
	return filepath.Join("metadata", id+".json")
}

func resultPath(id string) string {
	return filepath.Join("results", id+".png")
}
