package affiliate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/rs/zerolog/log"
)

var ErrUnknownAction = errors.New("unknown crawler action")

// CommandResult is returned for every dispatched command.
type CommandResult struct {
	Action constants.ActionType `json:"action"`
	// Changed is false when the command had nothing to act on, e.g. stopping
	// an idle crawler.
	Changed bool   `json:"changed"`
	Status  Status `json:"status"`
}

// AutoToggler is the part of *AutoCrawler a reset needs.
type AutoToggler interface {
	Disable(ctx context.Context)
}

// CommandDispatcher maps crawler commands to the orchestrator. The HTTP
// handlers and the NATS subscription share one instance.
type CommandDispatcher struct {
	orchestrator *Orchestrator
	auto         AutoToggler
}

func NewCommandDispatcher(orchestrator *Orchestrator, auto AutoToggler) *CommandDispatcher {
	return &CommandDispatcher{orchestrator: orchestrator, auto: auto}
}

// Dispatch runs msg.Action. Start expects a StartCommand payload.
func (d *CommandDispatcher) Dispatch(ctx context.Context, msg messaging.CommandMessage) (CommandResult, error) {
	log.Info().Str("action", string(msg.Action)).Msg("Dispatching crawler command")

	switch msg.Action {
	case constants.StartCrawlingAction:
		var cmd StartCommand
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
				return CommandResult{}, fmt.Errorf("decoding start payload: %w", err)
			}
		}
		return d.Start(ctx, cmd)
	case constants.ContinueCrawlingAction:
		return d.Continue(ctx)
	case constants.StopCrawlingAction:
		return d.Stop(ctx), nil
	case constants.ResetCrawlingAction:
		return d.Reset(ctx)
	}
	return CommandResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
}

func (d *CommandDispatcher) Start(ctx context.Context, cmd StartCommand) (CommandResult, error) {
	if err := d.orchestrator.Start(ctx, cmd); err != nil {
		return CommandResult{}, err
	}
	return d.result(constants.StartCrawlingAction, true), nil
}

func (d *CommandDispatcher) Continue(ctx context.Context) (CommandResult, error) {
	if err := d.orchestrator.Continue(ctx); err != nil {
		return CommandResult{}, err
	}
	return d.result(constants.ContinueCrawlingAction, true), nil
}

func (d *CommandDispatcher) Stop(ctx context.Context) CommandResult {
	stopped := d.orchestrator.Stop(ctx)
	return d.result(constants.StopCrawlingAction, stopped)
}

// Reset also turns auto crawling off.
func (d *CommandDispatcher) Reset(ctx context.Context) (CommandResult, error) {
	if d.auto != nil {
		d.auto.Disable(ctx)
	}
	if err := d.orchestrator.Reset(ctx); err != nil {
		return CommandResult{}, err
	}
	return d.result(constants.ResetCrawlingAction, true), nil
}

func (d *CommandDispatcher) Status() Status {
	return d.orchestrator.Status()
}

func (d *CommandDispatcher) result(action constants.ActionType, changed bool) CommandResult {
	return CommandResult{Action: action, Changed: changed, Status: d.orchestrator.Status()}
}
