package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
)

const maxErrorBody = 64 << 10

// responseError turns a non-2xx response into an error carrying the most
// specific message the server gave.
func responseError(backend string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil {
			for _, key := range []string{"detail", "error", "message"} {
				if v, ok := payload[key]; ok && v != nil {
					message = fmt.Sprint(v)
					break
				}
			}
		}
	}
	if message == "" {
		message = resp.Status
	}
	return fmt.Errorf("%s API error: HTTP %d: %s", backend, resp.StatusCode, message)
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

func multipartBody(files []formFile, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s part: %w", f.field, err)
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, "", fmt.Errorf("failed to write %s part: %w", f.field, err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func encodePair(req Request) ([]byte, []byte, error) {
	if req.Image == nil || req.Mask == nil {
		return nil, nil, fmt.Errorf("image and mask are required")
	}
	imagePNG, err := processor.EncodePNG(req.Image)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode image: %w", err)
	}
	maskPNG, err := processor.EncodePNG(req.Mask)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode mask: %w", err)
	}
	return imagePNG, maskPNG, nil
}

func formatSteps(n int) string {
	return strconv.Itoa(n)
}

func formatGuidance(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}

// decodeImageRef decodes either a data URI or raw image bytes.
func decodeImageRef(data []byte) (image.Image, error) {
	if bytes.HasPrefix(data, []byte("data:")) {
		raw, err := processor.DecodeDataURI(string(data))
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return processor.Decode(bytes.NewReader(data))
}
