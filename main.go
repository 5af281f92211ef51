package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/app"
	"tradepilot/src/database"
	"tradepilot/src/server"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	assistant, err := app.Build()
	if err != nil {
		logger.WithError(err).Fatal("Failed to build assistant")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assistant.Run(ctx)

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}

	server.StartServer(port, server.Routes{
		Engine: assistant.Engine,
		Ledger: assistant.Ledger,
		Orders: assistant.Orders,
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
