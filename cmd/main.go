package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradepilot/src/app"
	"tradepilot/src/database"
	"tradepilot/src/nlp"
)

var Version string

func main() {
	a := cli.NewApp()
	a.Name = "TradePilot CMD"
	a.Usage = "The TradePilot command line interface"

	a.Commands = []cli.Command{
		interpretCMD,
		monitorCMD,
	}

	if err := a.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	interpretCMD = cli.Command{
		Name:        "interpret",
		Usage:       "interpret a message without executing anything",
		Action:      interpretAction,
		ArgsUsage:   "<text>",
		Flags:       []cli.Flag{},
		Description: `Classify a message and print the extracted intent and entities as JSON`,
	}
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the background monitor loop only",
		Action:      monitorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run revaluation, protective orders, alerts and reconciliation without the HTTP server`,
	}
)

func interpretAction(c *cli.Context) error {
	text := strings.Join(c.Args(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("usage: interpret <text>")
	}

	interpreter := nlp.NewInterpreter(nlp.GetConfig())
	intent, entities := interpreter.Interpret(context.Background(), text, 0)

	out, err := json.MarshalIndent(map[string]interface{}{
		"intent":   intent,
		"entities": entities,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}

func monitorAction(_ *cli.Context) error {

	logrus.Info("Starting monitor CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	assistant, err := app.Build()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assistant.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	return nil
}
