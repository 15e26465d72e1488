package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"

	"github.com/contestguard/harvester/cmd/harvester/cmds"
	"github.com/contestguard/harvester/internal/logger"
	otelharvester "github.com/contestguard/harvester/internal/otel"
	"github.com/contestguard/harvester/internal/runerrors"
)

var tracer = otel.Tracer("github.com/contestguard/harvester/cmd/harvester")

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		useOTLP = false
	}

	shutdown, err := otelharvester.SetupOTelSDK(ctx, useOTLP)
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk")
	}
	defer func() {
		fail := shutdown(ctx)
		if fail != nil {
			logger.Logger.Warn("no clean shutdown for otel", "error", fail)
		}
	}()

	ctx, span := tracer.Start(ctx, "Harvester")
	defer span.End()

	err = cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)

		var ee runerrors.ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		return runerrors.ExitErrored
	}

	return runerrors.ExitOK
}

func main() {
	logger.LogLevel.Set(slog.LevelInfo)
	logger.InitSlog()

	ctx := context.Background()

	os.Exit(runApp(ctx))
}
