package nlp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

const (
	classifierRetryCount = 2
	classifierRetryWait  = 250 * time.Millisecond
	classifierRetryMax   = 2 * time.Second
)

// candidateLabels are the labels the zero-shot endpoint scores. They map 1:1
// onto intent kinds through labelToIntent.
var candidateLabels = []string{
	"trade execution",
	"portfolio query",
	"price query",
	"price alert",
	"cancel request",
}

func labelToIntent(label string) model.IntentKind {
	switch strings.ToLower(label) {
	case "trade execution":
		return model.IntentTradeRequest
	case "portfolio query":
		return model.IntentPortfolioQuery
	case "price query":
		return model.IntentPriceQuery
	case "price alert":
		return model.IntentAlertRequest
	case "cancel request":
		return model.IntentCancelRequest
	}
	return model.IntentUnknown
}

type classifyRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters classifyLabelSet `json:"parameters"`
}

type classifyLabelSet struct {
	CandidateLabels []string `json:"candidate_labels"`
}

type classifyResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// RemoteClassifier calls a hosted zero-shot classification model.
// Classification is an idempotent read, so the client retries with backoff;
// the interpreter still falls back to rules on any error or timeout.
type RemoteClassifier struct {
	http *resty.Client
}

func NewRemoteClassifier(baseURL, token string, timeout time.Duration) *RemoteClassifier {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(classifierRetryCount).
		SetRetryWaitTime(classifierRetryWait).
		SetRetryMaxWaitTime(classifierRetryMax)

	if token != "" {
		httpClient.SetAuthToken(token)
	}

	return &RemoteClassifier{http: httpClient}
}

func (c *RemoteClassifier) Classify(ctx context.Context, text string) (model.IntentKind, float64, error) {
	var result classifyResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(classifyRequest{
			Inputs:     text,
			Parameters: classifyLabelSet{CandidateLabels: candidateLabels},
		}).
		SetResult(&result).
		Post("")
	if err != nil {
		return model.IntentUnknown, 0, fmt.Errorf("classifier request failed: %w", err)
	}

	if resp.IsError() {
		return model.IntentUnknown, 0, fmt.Errorf("classifier returned status %d", resp.StatusCode())
	}

	if len(result.Labels) == 0 || len(result.Scores) == 0 {
		return model.IntentUnknown, 0, fmt.Errorf("classifier returned empty result")
	}

	kind := labelToIntent(result.Labels[0])
	score := result.Scores[0]

	logger.WithFields(logger.Fields{
		"label": result.Labels[0],
		"score": score,
	}).Debug("Remote intent classification")

	return kind, score, nil
}
