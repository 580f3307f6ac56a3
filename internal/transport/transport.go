package transport

import (
	"net/http"

	"github.com/ds124wfegd/inpainting/internal/entity"
	"github.com/gin-gonic/gin"
)

const corsMethods = "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT"

// InitRoutes builds the router. maxUploadBytes caps request bodies; zero disables the cap.
func InitRoutes(inpaintHandler *InpaintHandler, maxUploadBytes int64) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.CustomRecovery(recoverFailure))
	if maxUploadBytes > 0 {
		router.MaxMultipartMemory = maxUploadBytes
	}

	router.Use(corsMiddleware())
	if maxUploadBytes > 0 {
		router.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
			c.Next()
		})
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, entity.MessageResponse{Message: "Local Inpainting API is running"})
	})

	// Health check
	router.GET("/health", inpaintHandler.Health)

	router.POST("/inpaint", inpaintHandler.Inpaint)
	router.GET("/results/:id", inpaintHandler.GetResult)
	router.GET("/results/:id/image", inpaintHandler.GetResultImage)
	router.DELETE("/results/:id", inpaintHandler.DeleteResult)
	return router
}

// corsMiddleware allows every origin, method and header. The origin is
// echoed rather than "*" because credentials are allowed.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", corsMethods)

		headers := c.GetHeader("Access-Control-Request-Headers")
		if headers == "" {
			headers = "*"
		}
		c.Header("Access-Control-Allow-Headers", headers)
		if origin != "*" {
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
