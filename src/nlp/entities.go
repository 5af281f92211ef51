package nlp

import (
	"regexp"
	"strconv"
	"strings"

	"tradepilot/src/model"
)

var (
	pairPattern       = regexp.MustCompile(`\b([A-Z0-9]{2,6})/(USDT|USDC|USD|BTC|ETH)\b`)
	tickerPattern     = regexp.MustCompile(`\b(BTC|ETH|ADA|DOT|LINK|UNI|AAVE|SOL|AVAX|MATIC|ATOM|NEAR|ALGO|XTZ|GRT|SNX|CRV|YFI|COMP|MKR)\b`)
	percentPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	numberPattern     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	timeframePattern  = regexp.MustCompile(`\b(1m|5m|15m|30m|1h|4h|1d|1w)\b`)
	venuePattern      = regexp.MustCompile(`\b(binance|coinbase|kraken|bybit|paper)\b`)
	pricePrefixTokens = regexp.MustCompile(`(?:\bat\b|@)\s*\$?(\d+(?:\.\d+)?)\b`)
)

// symbolAliases maps spoken names to trading pairs. Bare tickers resolve to
// their USDT pair.
var symbolAliases = map[string]string{
	"bitcoin":  "BTC/USDT",
	"ethereum": "ETH/USDT",
	"ether":    "ETH/USDT",
	"solana":   "SOL/USDT",
	"cardano":  "ADA/USDT",
	"polkadot": "DOT/USDT",
	"dogecoin": "DOGE/USDT",
	"ripple":   "XRP/USDT",
}

// ExtractEntities pulls symbol, amounts, prices, order type, side, timeframe
// and venue hints out of free text. It runs regardless of the classified
// intent and never fails; absent fields stay zero-valued.
func ExtractEntities(text string) model.ExtractedEntities {
	entities := model.ExtractedEntities{}
	lower := strings.ToLower(text)

	entities.Symbol = extractSymbol(text, lower)

	// percentages first so their digits are not mistaken for amounts
	stripped := lower
	if m := percentPattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			entities.Percentage = &v
		}
		stripped = percentPattern.ReplaceAllString(stripped, " ")
	}

	// "at 45000" / "@45000" marks a price, not a quantity
	if m := pricePrefixTokens.FindStringSubmatch(stripped); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			entities.Price = &v
		}
		stripped = pricePrefixTokens.ReplaceAllString(stripped, " ")
	}

	// timeframes like 1h would otherwise leave a bare "1" behind
	if m := timeframePattern.FindString(stripped); m != "" {
		entities.Timeframe = m
		stripped = timeframePattern.ReplaceAllString(stripped, " ")
	}

	nums := numberPattern.FindAllString(stripped, -1)
	if len(nums) > 0 {
		if v, err := strconv.ParseFloat(nums[0], 64); err == nil {
			entities.Amount = &v
		}
	}
	if entities.Price == nil && len(nums) > 1 {
		if v, err := strconv.ParseFloat(nums[1], 64); err == nil {
			entities.Price = &v
		}
	}

	switch {
	case strings.Contains(lower, "limit"):
		entities.OrderType = model.OrderTypeLimit
	case strings.Contains(lower, "stop"):
		entities.OrderType = model.OrderTypeStop
	default:
		entities.OrderType = model.OrderTypeMarket
	}

	switch {
	case strings.Contains(lower, "sell") || strings.Contains(lower, "short"):
		entities.Side = model.SideSell
	case strings.Contains(lower, "buy") || strings.Contains(lower, "long"):
		entities.Side = model.SideBuy
	}

	if m := venuePattern.FindString(lower); m != "" {
		entities.Venue = m
	}

	return entities
}

func extractSymbol(text, lower string) string {
	upper := strings.ToUpper(text)

	if m := pairPattern.FindString(upper); m != "" {
		return m
	}

	for alias, pair := range symbolAliases {
		if strings.Contains(lower, alias) {
			return pair
		}
	}

	if m := tickerPattern.FindString(upper); m != "" {
		return m + "/USDT"
	}

	return ""
}
