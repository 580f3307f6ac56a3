package transport

import (
	"github.com/ds124wfegd/inpainting/internal/service"
)

type InpaintHandler struct {
	service service.InpaintService
}

func NewInpaintHandler(service service.InpaintService) *InpaintHandler {
	return &InpaintHandler{service: service}
}
