package app

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/engine"
	"tradepilot/src/ledger"
	"tradepilot/src/nlp"
	"tradepilot/src/repository"
	"tradepilot/src/risk"
	"tradepilot/src/router"
	"tradepilot/src/security"
	"tradepilot/src/session"
)

// App is the assembled assistant: engine, monitor and the collaborators the
// HTTP surface needs. Build once at startup, after the database is up.
type App struct {
	Engine   *engine.Engine
	Monitor  *engine.Monitor
	Ledger   *ledger.Ledger
	Orders   *repository.OrderRepository
	Sessions *session.Store
	Quotes   *connectors.QuoteCache

	stream        *connectors.TickerStream
	sweepInterval session.Config
}

// Build wires the full stack from env config. The paper venue is always
// available; a live goex venue joins it when API credentials are configured.
func Build() (*App, error) {
	engineCfg := engine.GetConfig()
	connectorCfg := connectors.GetConfig()
	sessionCfg := session.GetConfig()

	quotes := connectors.NewQuoteCache()

	venues := []connectors.ExchangeConnector{
		connectors.NewPaperConnector(
			"paper",
			connectorCfg.Symbols,
			connectorCfg.PaperQuoteBalance,
			connectorCfg.PaperFeeRate,
		),
	}

	if connectorCfg.APIKey != "" {
		secret, err := security.DecryptIfNeeded(connectorCfg.APISecret)
		if err != nil {
			return nil, err
		}
		connectorCfg.APISecret = secret

		live, err := connectors.NewGoexConnector(connectorCfg)
		if err != nil {
			return nil, err
		}
		venues = append(venues, live)

		logger.WithField("venue", connectorCfg.Venue).Info("Live venue configured")
	}

	var stream *connectors.TickerStream
	if connectorCfg.TickerStreamURL != "" {
		stream = connectors.NewTickerStream(connectorCfg.TickerStreamURL, connectorCfg.Symbols, quotes)
	}

	led := ledger.New(engineCfg.StartingCash)
	sessions := session.NewStore(sessionCfg)
	orders := repository.NewOrderRepository()

	eng := engine.New(engineCfg, engine.Deps{
		Interpreter: nlp.NewInterpreter(nlp.GetConfig()),
		Router:      router.New(venues...),
		Sessions:    sessions,
		Ledger:      led,
		Limits:      risk.GetLimits(),
		Orders:      orders,
		Positions:   repository.NewPositionRepository(),
		Portfolios:  repository.NewPortfolioRepository(),
		Alerts:      repository.NewAlertRepository(),
		Snapshots:   repository.NewSessionRepository(),
		Exceptions:  repository.NewExceptionRepository(),
		Quotes:      quotes,
	})

	return &App{
		Engine:        eng,
		Monitor:       engine.NewMonitor(eng),
		Ledger:        led,
		Orders:        orders,
		Sessions:      sessions,
		Quotes:        quotes,
		stream:        stream,
		sweepInterval: sessionCfg,
	}, nil
}

// Run starts the background loops: the monitor, the session sweeper and,
// when configured, the websocket quote stream. Returns immediately.
func (a *App) Run(ctx context.Context) {
	go a.Monitor.Run(ctx)
	go a.Sessions.Sweep(ctx, a.sweepInterval.SweepInterval)

	if a.stream != nil {
		go a.stream.Run(ctx)
	}
}
