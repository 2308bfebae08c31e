package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/velaline/booking-agent/agent/contract"
	intentx "github.com/velaline/booking-agent/agent/intent"
	statex "github.com/velaline/booking-agent/agent/state"
)

// turnState threads one turn through the graph.
type turnState struct {
	SessionID string
	Role      contractx.Role
	Text      string
	Now       time.Time

	Session *statex.SessionContext
}

// compileTurnGraph builds the per-turn pipeline: validate, load context,
// then branch into the forced-override path or the regular dialogue path.
// The force path is reachable only when the persisted booking attempt is
// awaiting an override decision, the session is admin, and the utterance
// carries force vocabulary.
func (e *Engine) compileTurnGraph(ctx context.Context) (compose.Runnable[TurnInput, TurnOutput], error) {
	graph := compose.NewGraph[TurnInput, TurnOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in TurnInput) (*turnState, error) {
			return validateRequest(in, e.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_context",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return e.loadOrCreateContext(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_context: %w", err)
	}

	if err := graph.AddLambdaNode("force_path",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (TurnOutput, error) {
			return e.runForcedTurn(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node force_path: %w", err)
	}

	if err := graph.AddLambdaNode("dialogue_path",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (TurnOutput, error) {
			return e.runDialogueTurn(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dialogue_path: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *turnState) (string, error) {
			if in == nil || in.Session == nil {
				return "", fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
			}
			if in.Session.Memory.Booking.AwaitingOverride() &&
				in.Session.Role == contractx.RoleAdmin &&
				intentx.IsForceOverride(in.Text) {
				return "force_path", nil
			}
			return "dialogue_path", nil
		},
		map[string]bool{
			"force_path":    true,
			"dialogue_path": true,
		},
	)

	if err := graph.AddBranch("load_or_create_context", branch); err != nil {
		return nil, fmt.Errorf("add turn branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "validate_request"); err != nil {
		return nil, fmt.Errorf("add edge start->validate_request: %w", err)
	}
	if err := graph.AddEdge("validate_request", "load_or_create_context"); err != nil {
		return nil, fmt.Errorf("add edge validate_request->load_or_create_context: %w", err)
	}
	if err := graph.AddEdge("force_path", compose.END); err != nil {
		return nil, fmt.Errorf("add edge force_path->end: %w", err)
	}
	if err := graph.AddEdge("dialogue_path", compose.END); err != nil {
		return nil, fmt.Errorf("add edge dialogue_path->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("engine.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}

func validateRequest(in TurnInput, nowFn func() time.Time) (*turnState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &turnState{
		SessionID: sessionID,
		Role:      contractx.ParseRole(string(in.Role)),
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}

func (e *Engine) loadOrCreateContext(ctx context.Context, in *turnState) (*turnState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}

	sctx, err := e.store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		sctx = statex.NewSessionContext(in.SessionID, in.Role, in.Now)
	}
	in.Session = sctx
	return in, nil
}
