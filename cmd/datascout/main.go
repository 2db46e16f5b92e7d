package main

import (
	"context"
	"os"

	"github.com/deusflow/datascout/internal/app"
	"github.com/deusflow/datascout/internal/logger"
)

func main() {
	logger.Init()

	if err := app.Run(context.Background()); err != nil {
		logger.Error("Data Scout run failed", "error", err)
		os.Exit(1)
	}
}
