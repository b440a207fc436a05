package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// ResultFetcher is the fetching half of an Engine
type ResultFetcher interface {
	FetchResult(ctx context.Context, handle *models.ExecutionHandle) (models.RunOutcome, error)
}

// Classifier reads a finished run's outcome exactly once. A fetch error is fatal for the request.
type Classifier struct {
	fetcher ResultFetcher
	log     zerolog.Logger
}

func NewClassifier(fetcher ResultFetcher, logger zerolog.Logger) *Classifier {
	return &Classifier{fetcher: fetcher, log: logger}
}

func (c *Classifier) Classify(ctx context.Context, handle *models.ExecutionHandle) (models.RunOutcome, error) {
	outcome, err := c.fetcher.FetchResult(ctx, handle)
	if err != nil {
		c.log.Error().Str("run", handle.RunName).Err(err).Msg("unable to fetch result")
		return models.RunOutcome{}, &FetchError{RunName: handle.RunName, Err: err}
	}

	if !outcome.IsSuccess() {
		c.log.Error().Str("run", handle.RunName).Str("reason", outcome.Reason()).Msg("function execution failed")
		return outcome, nil
	}
	c.log.Info().Str("run", handle.RunName).Str("result", outcome.Value()).Msg("function executed successfully")
	return outcome, nil
}
