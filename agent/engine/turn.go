package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/velaline/booking-agent/agent/contract"
	intentx "github.com/velaline/booking-agent/agent/intent"
	promptx "github.com/velaline/booking-agent/agent/prompt"
	statex "github.com/velaline/booking-agent/agent/state"
	toolx "github.com/velaline/booking-agent/agent/tool"
)

// runDialogueTurn is the regular path: classify, prompt, bounded tool loop,
// final reply, persist.
func (e *Engine) runDialogueTurn(ctx context.Context, ts *turnState) (TurnOutput, error) {
	sctx := ts.Session

	// A non-force answer while a conflicted booking waits for a decision
	// means the user picked another time: back to drafting, not an error.
	if sctx.Memory.Booking.AwaitingOverride() {
		sctx.Memory.Booking.State = statex.BookingDrafting
	}

	classified := intentx.Classify(ts.Text, sctx)
	if classified.ClearAppointmentFocus {
		sctx.ClearAppointmentFocus()
	}

	log.Debug().
		Str("session_id", ts.SessionID).
		Str("intent", string(classified.Intent)).
		Msg("turn classified")

	instructions := promptx.Build(classified.Intent, sctx, e.catalog.Summary(ctx), e.prompts)
	messages := e.buildMessages(instructions, sctx, ts.Text)

	reply, replyErr := e.converse(ctx, ts, messages)
	if replyErr != nil {
		// Model failure is turn-fatal for the dialogue, but the human
		// still gets a reply and the transcript is still persisted.
		log.Error().Err(replyErr).Str("session_id", ts.SessionID).Msg("model invocation failed")
		reply = fallbackReply
	}

	// A create turn never ends pointing at an appointment, even when a
	// lookup along the way surfaced one. The confirmed booking snapshot
	// keeps the new id for follow-up updates.
	if classified.Intent == intentx.Create {
		sctx.Memory.ActiveAppointmentID = ""
	}

	if err := e.finishTurn(ctx, ts, reply); err != nil {
		return TurnOutput{}, err
	}
	return TurnOutput{Reply: reply}, nil
}

// runForcedTurn reissues the conflicted booking with the force flag set.
// No second confirmation: the admin already said force.
func (e *Engine) runForcedTurn(ctx context.Context, ts *turnState) (TurnOutput, error) {
	sctx := ts.Session

	res := e.exec.ReissueForced(ctx, sctx)
	sctx.RecordToolCall(uuid.NewString(), res.Tool, map[string]any{"force": true}, summarizeResult(res), ts.Now)

	var reply string
	if res.Error != "" {
		reply = "I could not force that booking through: " + res.Error
	} else {
		reply = fmt.Sprintf("Done. The appointment is booked for %s at %s despite the conflict.",
			sctx.Memory.Booking.Date, sctx.Memory.Booking.Time)
		if phrased, err := e.phraseForcedReply(ctx, sctx); err == nil && phrased != "" {
			reply = phrased
		}
	}

	if err := e.finishTurn(ctx, ts, reply); err != nil {
		return TurnOutput{}, err
	}
	return TurnOutput{Reply: reply}, nil
}

// phraseForcedReply asks the model to word the confirmation. The booking
// already happened; a model failure here falls back to the templated text.
func (e *Engine) phraseForcedReply(ctx context.Context, sctx *statex.SessionContext) (string, error) {
	booking := sctx.Memory.Booking
	msg, err := e.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage("You are a booking assistant for a beauty studio. Confirm in one friendly sentence that the appointment was booked as requested, overriding a scheduling conflict. Do not ask anything."),
		schema.UserMessage(fmt.Sprintf("Booked: %s at %s.", booking.Date, booking.Time)),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

// converse runs the bounded tool-call loop. Each round calls the
// tool-bound model; tool requests are executed in order and fed back as
// tool messages. When rounds run out, one last plain call produces the
// reply so the loop can never recurse unbounded.
func (e *Engine) converse(ctx context.Context, ts *turnState, messages []*schema.Message) (string, error) {
	toolModel, err := e.chatModel.WithTools(toolx.InfosForRole(ts.Session.Role))
	if err != nil {
		return "", fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}

	for round := 0; round < e.maxToolRounds; round++ {
		msg, err := toolModel.Generate(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		if len(msg.ToolCalls) == 0 {
			reply := strings.TrimSpace(msg.Content)
			if reply == "" {
				return "", fmt.Errorf("%w: model returned empty reply", contractx.ErrSchemaViolation)
			}
			return reply, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			res := e.executeToolCall(ctx, ts, call)
			messages = append(messages, schema.ToolMessage(encodeResult(res), call.ID))
		}
	}

	// Rounds exhausted with the model still asking for tools: force a
	// plain-text wrap-up.
	msg, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	reply := strings.TrimSpace(msg.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: model returned empty reply", contractx.ErrSchemaViolation)
	}
	return reply, nil
}

// executeToolCall turns one model tool call into a ToolResult. Unknown
// tools and malformed arguments become tool-error results, never turn
// failures, so the model can recover by asking a clarifying question.
func (e *Engine) executeToolCall(ctx context.Context, ts *turnState, call schema.ToolCall) contractx.ToolResult {
	name := strings.TrimSpace(call.Function.Name)
	req := contractx.ToolRequest{CallID: call.ID, Tool: name}

	var res contractx.ToolResult
	switch {
	case name == "":
		res = contractx.ToolResult{CallID: call.ID, Tool: name, Error: "tool call has no name"}
	case !toolx.Known(name):
		res = contractx.ToolResult{CallID: call.ID, Tool: name, Error: fmt.Sprintf("unknown tool %q", name)}
	default:
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				res = contractx.ToolResult{CallID: call.ID, Tool: name, Error: "tool arguments are not valid JSON"}
				ts.Session.RecordToolCall(uuid.NewString(), name, nil, summarizeResult(res), ts.Now)
				return res
			}
		}
		req.Args = args
		res = e.exec.Execute(ctx, ts.Session, req)
	}

	ts.Session.RecordToolCall(uuid.NewString(), name, req.Args, summarizeResult(res), ts.Now)
	return res
}

func (e *Engine) buildMessages(instructions string, sctx *statex.SessionContext, userText string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(sctx.History)+2)
	messages = append(messages, schema.SystemMessage(instructions))
	for _, u := range sctx.History {
		switch u.Speaker {
		case statex.SpeakerAssistant:
			messages = append(messages, schema.AssistantMessage(u.Text, nil))
		default:
			messages = append(messages, schema.UserMessage(u.Text))
		}
	}
	messages = append(messages, schema.UserMessage(userText))
	return messages
}

// finishTurn appends the exchange to the transcript, summarizes anything
// that fell out of the window, and persists the context. Persistence is
// the turn's commit point.
func (e *Engine) finishTurn(ctx context.Context, ts *turnState, reply string) error {
	sctx := ts.Session

	pruned := sctx.AppendUtterance(statex.SpeakerUser, ts.Text)
	pruned = append(pruned, sctx.AppendUtterance(statex.SpeakerAssistant, reply)...)

	if len(pruned) > 0 && e.summarizer != nil {
		summary, err := e.summarizer.Summarize(ctx, sctx.Memory.HistorySummary, pruned)
		if err != nil {
			log.Warn().Err(err).Str("session_id", ts.SessionID).Msg("history summarization failed")
		} else {
			sctx.Memory.HistorySummary = summary
		}
	}

	sctx.Touch(ts.Now)
	if err := sctx.Validate(); err != nil {
		return fmt.Errorf("context validation failed: %w", err)
	}
	if err := e.store.Save(ctx, sctx); err != nil {
		return fmt.Errorf("save session context: %w", err)
	}
	return nil
}

func summarizeResult(res contractx.ToolResult) string {
	if res.Error != "" {
		return "error: " + res.Error
	}
	return "ok"
}

func encodeResult(res contractx.ToolResult) string {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"error":"result not serializable"}`, res.Tool)
	}
	return string(payload)
}
