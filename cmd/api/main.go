package main

import (
	"context"
	"log"

	"clarify-backend/internal/bootstrap"
	"clarify-backend/internal/shared/config"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	addr := ":" + cfg.Port
	log.Printf("starting API server on %s", addr)
	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
