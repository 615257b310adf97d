// Package agent bridges natural-language turns and internal settlement
// events to the language model. One Bridge owns one conversation thread; the
// relay runs a single shared thread for all realtime clients.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/m4xw311/typestake/llm"
	"github.com/m4xw311/typestake/session"
	"github.com/m4xw311/typestake/settle"
	"github.com/m4xw311/typestake/tools"
)

// Chunk is one streamed piece of a turn. Kind matches the realtime frame
// types the front end styles: "agent" for model narration, "tools" for tool
// results, "error" for failures surfaced mid-turn.
type Chunk struct {
	Kind    string
	Content string
}

const (
	ChunkAgent = "agent"
	ChunkTools = "tools"
	ChunkError = "error"
)

// turnLimit caps the model/tool round trips within one turn so a looping
// model cannot wedge the bridge.
const turnLimit = 16

// Bridge runs tool-calling turns against the model. Turns are serialized:
// the session is one thread and interleaved histories would corrupt it.
type Bridge struct {
	client    llm.Client
	sess      *session.Session
	registry  *tools.Registry
	broadcast func(Chunk)
	log       *slog.Logger

	mu sync.Mutex
}

// New builds a bridge. broadcast delivers settlement outcomes to every
// connected client and may be nil until SetBroadcast is called.
func New(client llm.Client, sess *session.Session, registry *tools.Registry, log *slog.Logger) *Bridge {
	return &Bridge{
		client:   client,
		sess:     sess,
		registry: registry,
		log:      log,
	}
}

// SetBroadcast attaches the fan-out used for settlement notifications.
func (b *Bridge) SetBroadcast(fn func(Chunk)) { b.broadcast = fn }

// Submit runs one agent turn. Every assistant message and tool result is
// passed to emit in emission order; the call returns when the model produces
// a text-only answer. emit must not be nil.
func (b *Bridge) Submit(ctx context.Context, userInput string, emit func(Chunk)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sess.AddMessage(session.Message{Role: "user", Content: userInput})

	for round := 0; ; round++ {
		if round == turnLimit {
			return fmt.Errorf("turn exceeded %d tool rounds", turnLimit)
		}

		resp, err := b.client.Chat(ctx, b.sess.History(), b.registry.All())
		if err != nil {
			return fmt.Errorf("model request failed: %w", err)
		}
		b.sess.AddMessage(*resp)

		if resp.Content != "" {
			emit(Chunk{Kind: ChunkAgent, Content: resp.Content})
		}
		if len(resp.ToolCalls) == 0 {
			break
		}

		for _, tc := range resp.ToolCalls {
			result := b.executeTool(ctx, tc)
			emit(Chunk{Kind: ChunkTools, Content: result})
			b.sess.AddMessage(session.Message{
				Role:      "tool",
				Content:   result,
				ToolCalls: []session.ToolCall{tc},
			})
		}
	}

	if err := b.sess.Save(); err != nil {
		b.log.Warn("failed to save session", "err", err)
	}
	return nil
}

// executeTool dispatches one tool call. Failures become tool results rather
// than turn failures so the model can react to them.
func (b *Bridge) executeTool(ctx context.Context, tc session.ToolCall) string {
	tool, ok := b.registry.Get(tc.Name)
	if !ok {
		b.log.Warn("model requested unknown tool", "tool", tc.Name)
		return fmt.Sprintf("Error: tool %q is not available.", tc.Name)
	}

	b.log.Info("executing tool", "tool", tc.Name)
	result, err := tool.Execute(ctx, tc.Args)
	if err != nil {
		b.log.Warn("tool failed", "tool", tc.Name, "err", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// NotifySettlement implements settle.Notifier: the outcome is narrated
// through the model as part of the shared thread and fanned out to every
// connected client. If the model is unavailable the raw outcome message is
// broadcast directly so clients never miss a settlement.
func (b *Bridge) NotifySettlement(ctx context.Context, o settle.Outcome) {
	if b.broadcast == nil {
		return
	}

	if o.Status == settle.StatusAborted {
		b.broadcast(Chunk{Kind: ChunkError, Content: o.Message})
		return
	}

	event := fmt.Sprintf(
		"User completed typing challenge %s with %v WPM. Settlement result: %s",
		o.ChallengeID, o.Metric, o.Message)

	if err := b.Submit(ctx, event, b.broadcast); err != nil {
		b.log.Warn("settlement narration failed, broadcasting outcome directly", "err", err)
		b.broadcast(Chunk{Kind: ChunkTools, Content: o.Message})
	}
}

var _ settle.Notifier = (*Bridge)(nil)
