// entry point to the inpainting server
package main

import (
	"github.com/ds124wfegd/inpainting/config"
	"github.com/ds124wfegd/inpainting/internal/appServer"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	logrus.WithFields(logrus.Fields{
		"version": cfg.Server.AppVersion,
		"addr":    cfg.Server.Addr(),
		"backend": cfg.Pipeline.Backend,
		"preload": cfg.Pipeline.Preload,
		"archive": cfg.Archive.Enabled,
	}).Info("Starting inpainting server")

	appServer.NewServer(cfg)
}
