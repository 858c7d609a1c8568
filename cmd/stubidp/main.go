// Package main runs the stub identity provider: an HTTP server that
// accepts refresh-token revocation calls, for developing against
// sessionkit without a real provider.
package main

import (
	"cmp"
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/avolkhov/sessionkit/internal/idp"
	"github.com/avolkhov/sessionkit/internal/logger"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	var (
		addr     string
		logLevel string
		showVer  bool
	)
	flag.StringVar(&addr, "a", "localhost:8080", "listen address (ip:port)")
	flag.StringVar(&logLevel, "log", "Info", "log level")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if v := os.Getenv("SESSIONKIT_IDP_ADDR"); v != "" {
		addr = v
	}

	if showVer {
		fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
		fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))
		return
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(logLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	handler := idp.NewRevokeHandler()
	router := idp.NewRouter(handler, zapLogger)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	zapLogger.Info("starting stub identity provider", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
}
