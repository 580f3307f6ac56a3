// launching the server, the pipeline handle, the result archive and kafka
package appServer

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/database"
	"github.com/ds124wfegd/inpainting/internal/pkg/kafka"
	"github.com/ds124wfegd/inpainting/internal/pkg/pipeline"
	"github.com/ds124wfegd/inpainting/internal/pkg/storage"
	"github.com/ds124wfegd/inpainting/internal/service"
	"github.com/ds124wfegd/inpainting/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// App is the wired application: router plus the resources it must release.
type App struct {
	Router   *gin.Engine
	Loader   *pipeline.Loader
	producer kafka.Producer
}

// NewApp wires every dependency. With pipeline.preload the model is loaded
// here, before the first request, and a load failure is returned.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	factory, err := pipeline.NewFactory(cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	loader := pipeline.NewLoader(factory)

	if cfg.Pipeline.Preload {
		if _, err := loader.Get(ctx); err != nil {
			return nil, err
		}
	}

	var repo database.InpaintRepository
	if cfg.Archive.Enabled {
		repo = database.NewInpaintRepository(storage.NewFileStorage(cfg.Archive.Dir))
		logrus.Infof("Archiving results under %s", cfg.Archive.Dir)
	}

	producer := kafka.NewProducer(cfg.Events.Brokers, cfg.Events.Topic)
	inpaintService := service.NewInpaintService(loader, cfg.Pipeline.MaxConcurrency, repo, producer)
	inpaintHandler := transport.NewInpaintHandler(inpaintService)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	return &App{
		Router:   transport.InitRoutes(inpaintHandler, cfg.Server.MaxUploadMB<<20),
		Loader:   loader,
		producer: producer,
	}, nil
}

func (a *App) Close() error {
	return a.producer.Close()
}

func NewServer(cfg *config.Config) {

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("error occured while starting the pipeline: %s", err.Error())
	}
	defer app.Close()

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, app.Router); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Printf("App %s Started on %s (backend: %s)", cfg.Server.AppVersion, cfg.Server.Addr(), cfg.Pipeline.Backend)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

}
