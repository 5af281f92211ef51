package router

import (
	"context"
	"errors"
	"math"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
)

var (
	// ErrNoVenueAvailable means no connected venue lists the symbol or has a
	// usable quote for it.
	ErrNoVenueAvailable = errors.New("no venue available for symbol")

	// ErrPreferredVenueUnavailable means the request named a venue that is
	// not connected or does not list the symbol.
	ErrPreferredVenueUnavailable = errors.New("preferred venue unavailable")
)

// Router picks the venue to execute on. The score is spread/volume — a tight
// spread on a liquid market wins; zero volume is excluded outright.
type Router struct {
	venues []connectors.ExchangeConnector
}

func New(venues ...connectors.ExchangeConnector) *Router {
	return &Router{venues: venues}
}

// Venues returns the connected venue set.
func (r *Router) Venues() []connectors.ExchangeConnector {
	return r.venues
}

// ByName resolves a connected venue by name.
func (r *Router) ByName(name string) (connectors.ExchangeConnector, bool) {
	for _, v := range r.venues {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// SelectVenue returns the best venue for symbol. A non-empty preference
// bypasses scoring entirely but is validated for availability first.
func (r *Router) SelectVenue(ctx context.Context, symbol, preference string) (connectors.ExchangeConnector, error) {
	if preference != "" {
		venue, ok := r.ByName(preference)
		if !ok || !venue.HasSymbol(symbol) {
			return nil, ErrPreferredVenueUnavailable
		}
		return venue, nil
	}

	var best connectors.ExchangeConnector
	bestScore := math.Inf(1)

	for _, venue := range r.venues {
		if !venue.HasSymbol(symbol) {
			continue
		}

		ticker, err := venue.FetchTicker(ctx, symbol)
		if err != nil {
			logger.WithError(err).WithFields(logger.Fields{
				"venue":  venue.Name(),
				"symbol": symbol,
			}).Warn("Skipping venue, ticker unavailable")
			continue
		}
		if ticker.Volume <= 0 {
			continue
		}

		score := ticker.Spread() / ticker.Volume
		if score < bestScore {
			bestScore = score
			best = venue
		}
	}

	if best == nil {
		return nil, ErrNoVenueAvailable
	}

	logger.WithFields(logger.Fields{
		"venue":  best.Name(),
		"symbol": symbol,
		"score":  bestScore,
	}).Debug("Venue selected")

	return best, nil
}
