package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ds124wfegd/inpainting/internal/database"
	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/ds124wfegd/inpainting/internal/pkg/pipeline"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
	"github.com/ds124wfegd/inpainting/internal/pkg/storage"
	"github.com/ds124wfegd/inpainting/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, repo database.InpaintRepository) (*gin.Engine, *pipeline.Loader) {
	t.Helper()
	loader := pipeline.NewLoader(func(ctx context.Context) (pipeline.Inpainter, error) {
		return pipeline.NewBuiltin(), nil
	})
	svc := service.NewInpaintService(loader, 1, repo, nil)
	return InitRoutes(NewInpaintHandler(svc), 8<<20), loader
}

func circlePNG(t *testing.T, radius int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			dx, dy := x-50, y-50
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, color.Black)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upload struct {
	files  map[string][]byte
	fields map[string]string
}

func postInpaint(t *testing.T, router http.Handler, u upload) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range u.files {
		part, err := writer.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range u.fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/inpaint", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoot(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := get(router, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Local Inpainting API is running"}`, w.Body.String())
}

func TestHealthReflectsLazyLoad(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := get(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","model_loaded":false}`, w.Body.String())

	resp := postInpaint(t, router, upload{files: map[string][]byte{
		"image": circlePNG(t, 25),
		"mask":  circlePNG(t, 10),
	}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	w = get(router, "/health")
	assert.JSONEq(t, `{"status":"healthy","model_loaded":true}`, w.Body.String())
}

func TestHealthAfterPreload(t *testing.T) {
	router, loader := newRouter(t, nil)
	_, err := loader.Get(context.Background())
	require.NoError(t, err)

	w := get(router, "/health")

	assert.JSONEq(t, `{"status":"healthy","model_loaded":true}`, w.Body.String())
}

func TestInpaintSuccess(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := postInpaint(t, router, upload{
		files: map[string][]byte{
			"image": circlePNG(t, 25),
			"mask":  circlePNG(t, 10),
		},
		fields: map[string]string{
			"prompt":              "a white wall",
			"num_inference_steps": "5",
			"guidance_scale":      "7.5",
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Image processed successfully", resp["message"])
	assert.NotContains(t, resp, "id")

	imageURL, _ := resp["image_url"].(string)
	require.True(t, strings.HasPrefix(imageURL, "data:image/png;base64,"), imageURL)

	data, err := processor.DecodeDataURI(imageURL)
	require.NoError(t, err)
	img, err := processor.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
}

func TestInpaintFailures(t *testing.T) {
	valid := circlePNG(t, 25)

	tests := []struct {
		name     string
		upload   upload
		contains string
	}{
		{
			name:     "image is not an image",
			upload:   upload{files: map[string][]byte{"image": []byte("just text"), "mask": valid}},
			contains: "image",
		},
		{
			name:     "missing mask",
			upload:   upload{files: map[string][]byte{"image": valid}},
			contains: "mask",
		},
		{
			name: "steps not a number",
			upload: upload{
				files:  map[string][]byte{"image": valid, "mask": valid},
				fields: map[string]string{"num_inference_steps": "many"},
			},
			contains: "num_inference_steps",
		},
		{
			name: "guidance not a number",
			upload: upload{
				files:  map[string][]byte{"image": valid, "mask": valid},
				fields: map[string]string{"guidance_scale": "high"},
			},
			contains: "guidance_scale",
		},
		{
			name: "steps rejected by pipeline",
			upload: upload{
				files:  map[string][]byte{"image": valid, "mask": valid},
				fields: map[string]string{"num_inference_steps": "0"},
			},
			contains: "num_inference_steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRouter(t, nil)

			w := postInpaint(t, router, tt.upload)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var resp entity.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Detail)
			assert.True(t, strings.HasPrefix(resp.Detail, "Error processing image: "), resp.Detail)
			assert.Contains(t, resp.Detail, tt.contains)
		})
	}
}

func TestResultsWithArchive(t *testing.T) {
	repo := database.NewInpaintRepository(storage.NewFileStorage(t.TempDir()))
	router, _ := newRouter(t, repo)

	w := postInpaint(t, router, upload{files: map[string][]byte{
		"image": circlePNG(t, 25),
		"mask":  circlePNG(t, 10),
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp entity.InpaintResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)

	w = get(router, "/results/"+resp.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var record entity.InpaintRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, entity.StatusCompleted, record.Status)
	assert.Equal(t, pipeline.BackendBuiltin, record.Backend)
	assert.Equal(t, entity.DefaultPrompt, record.Prompt)

	w = get(router, "/results/"+resp.ID+"/image")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	payload, err := processor.DecodeDataURI(resp.ImageURL)
	require.NoError(t, err)
	assert.Equal(t, payload, w.Body.Bytes())

	w = get(router, "/results/00000000-0000-0000-0000-000000000000")
	assert.Equal(t, http.StatusNotFound, w.Code)

	del := httptest.NewRecorder()
	router.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/results/"+resp.ID, nil))
	assert.Equal(t, http.StatusOK, del.Code)

	w = get(router, "/results/"+resp.ID+"/image")
	assert.Equal(t, http.StatusNotFound, w.Code)

	del = httptest.NewRecorder()
	router.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/results/"+resp.ID, nil))
	assert.Equal(t, http.StatusNotFound, del.Code)
}

func TestResultsWithoutArchive(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := get(router, "/results/00000000-0000-0000-0000-000000000000")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")
}

func TestCORS(t *testing.T) {
	router, _ := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/inpaint", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Custom")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "X-Custom", w.Header().Get("Access-Control-Allow-Headers"))

	w = get(router, "/")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadLimit(t *testing.T) {
	loader := pipeline.NewLoader(func(ctx context.Context) (pipeline.Inpainter, error) {
		return pipeline.NewBuiltin(), nil
	})
	router := InitRoutes(NewInpaintHandler(service.NewInpaintService(loader, 1, nil, nil)), 1024)

	w := postInpaint(t, router, upload{files: map[string][]byte{
		"image": bytes.Repeat([]byte{1}, 4096),
		"mask":  circlePNG(t, 10),
	}})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Error processing image")
}

func TestBlankFieldsUseDefaults(t *testing.T) {
	repo := database.NewInpaintRepository(storage.NewFileStorage(t.TempDir()))
	router, _ := newRouter(t, repo)

	w := postInpaint(t, router, upload{
		files: map[string][]byte{
			"image": circlePNG(t, 25),
			"mask":  circlePNG(t, 10),
		},
		fields: map[string]string{
			"prompt":              "",
			"num_inference_steps": "",
			"guidance_scale":      "  ",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp entity.InpaintResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = get(router, "/results/"+resp.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var record entity.InpaintRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, entity.DefaultPrompt, record.Prompt)
	assert.Equal(t, entity.DefaultNumInferenceSteps, record.NumInferenceSteps)
	assert.Equal(t, entity.DefaultGuidanceScale, record.GuidanceScale)
}

type panickingService struct {
	service.InpaintService
}

func (panickingService) Inpaint(ctx context.Context, image, mask io.Reader, params entity.GenerationParams) (*entity.InpaintResult, error) {
	panic("backend exploded")
}

func TestPanicIsReportedAsProcessingFailure(t *testing.T) {
	router := InitRoutes(NewInpaintHandler(panickingService{}), 8<<20)

	w := postInpaint(t, router, upload{files: map[string][]byte{
		"image": circlePNG(t, 25),
		"mask":  circlePNG(t, 10),
	}})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp entity.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Error processing image: panic: backend exploded", resp.Detail)
}
