package main

import (
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/flowcore/cmd/flowengine/handlers"
	"github.com/lyzr/flowcore/common/config"
	"github.com/lyzr/flowcore/common/logger"
	"github.com/lyzr/flowcore/connectors/handlers/registry"
	"github.com/lyzr/flowcore/internal/engine"
)

func main() {
	cfg, err := config.Load("flowengine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	eng := engine.New(log)
	registry.RegisterDefaults(eng.Registry, cfg)

	e := setupEcho()
	setupMiddleware(e)

	h := handlers.New(eng)
	e.GET("/health", h.Health)
	e.POST("/executions", h.Trigger)
	e.GET("/executions/:id/events", h.Events)
	e.POST("/executions/:id/nodes/:nodeId/signal", h.Signal)

	addr := fmt.Sprintf(":%d", cfg.Service.Port)
	log.Info("flowengine starting", "addr", addr)
	if err := e.Start(addr); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}
