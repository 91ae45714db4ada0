package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stoqplus/backend/internal/cli"
	"stoqplus/backend/internal/config"
	"stoqplus/backend/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "stoqctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      "console",
		Output:      os.Stderr,
	})

	root := cli.NewRootCommand(&cli.RootOptions{Config: cfg, Logger: log})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
