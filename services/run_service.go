package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
	"github.com/ljbeal/MCP-remotemanager/observability"
)

// WaitPolicy bounds the completion wait of one run
type WaitPolicy struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// RunService is the gateway entry point: validate, name, dispatch, wait, classify.
type RunService struct {
	validator  *Validator
	identity   *IdentityGenerator
	dispatcher *Dispatcher
	waiter     *Waiter
	classifier *Classifier
	engine     string
	policy     WaitPolicy
	log        zerolog.Logger
}

// RunServiceDeps carries the collaborators of a RunService
type RunServiceDeps struct {
	Probe       HostProbe
	Engine      Engine
	Clock       func() time.Time
	StagingRoot string
	GoBinary    string
	Policy      WaitPolicy
}

func NewRunService(deps RunServiceDeps, logger zerolog.Logger) *RunService {
	return &RunService{
		validator:  NewValidator(deps.Probe, observability.Component(logger, "validator")),
		identity:   NewIdentityGenerator(deps.Clock),
		dispatcher: NewDispatcher(deps.Engine, deps.StagingRoot, deps.GoBinary, observability.Component(logger, "dispatcher")),
		waiter:     NewWaiter(deps.Engine, observability.Component(logger, "waiter")),
		classifier: NewClassifier(deps.Engine, observability.Component(logger, "classifier")),
		engine:     deps.Engine.Name(),
		policy:     deps.Policy,
		log:        observability.Component(logger, "gateway"),
	}
}

// RunCode runs source's entry function on hostname with args bound by parameter name.
// It always returns exactly one of Result or Error.
func (s *RunService) RunCode(ctx context.Context, source, hostname string, args map[string]interface{}) (resp models.RunResponse) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("run_code panicked")
			outcome = KindInternal
			resp = models.ErrorResponse(fmt.Sprintf("Internal error: %v", r))
		}
		observability.RecordRun(s.engine, outcome, time.Since(start))
	}()

	fail := func(err error) models.RunResponse {
		outcome = ErrorKind(err)
		s.log.Error().Str("kind", outcome).Dur("elapsed", time.Since(start)).Err(err).Msg("run_code failed")
		return models.ErrorResponse(err.Error())
	}

	s.log.Info().Str("host", hostname).Int("args", len(args)).Msg("starting function execution")

	sub, err := s.validator.ValidateSource(source)
	if err != nil {
		return fail(err)
	}
	if err := s.validator.ValidateHost(ctx, hostname); err != nil {
		return fail(err)
	}

	req := &models.RunRequest{
		Submission: sub,
		Host:       models.HostTarget{Hostname: hostname},
		Identity:   s.identity.Next(sub.FunctionName, hostname),
		Args:       args,
	}
	s.log.Info().Str("run", req.Identity.Name).Str("function", sub.FunctionName).Msg("run created")

	handle, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return fail(err)
	}

	if err := s.waiter.Await(ctx, handle, s.policy.PollInterval, s.policy.MaxWait); err != nil {
		return fail(err)
	}

	result, err := s.classifier.Classify(ctx, handle)
	if err != nil {
		return fail(err)
	}
	if !result.IsSuccess() {
		return fail(&RunnerFailedError{Detail: result.Reason()})
	}

	s.log.Info().Str("run", req.Identity.Name).Dur("elapsed", time.Since(start)).Msg("run_code finished")
	return models.ResultResponse(result.Value())
}
