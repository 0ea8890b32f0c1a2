package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/logging"
)

// Node names a state of the orchestration machine.
type Node string

const (
	NodeWorker    Node = "worker"
	NodeTools     Node = "tools"
	NodeEvaluator Node = "evaluator"
	NodeEnd       Node = "end"
)

// DefaultMaxEvaluatorCycles bounds evaluator passes per turn.
const DefaultMaxEvaluatorCycles = 8

// ToolInvoker runs a tool call and always produces a result.
type ToolInvoker interface {
	Invoke(ctx context.Context, call domain.ToolCall) domain.ToolResult
}

// Checkpoint persists the state after each node step.
type Checkpoint func(ctx context.Context, state *domain.ConversationState) error

// NodeEvent describes a node transition.
type NodeEvent struct {
	ThreadID string
	Node     Node
	Next     Node
}

// Hooks observe the graph. Any field may be nil.
type Hooks struct {
	OnNodeEnter  func(ctx context.Context, e NodeEvent)
	OnNodeLeave  func(ctx context.Context, e NodeEvent)
	OnToolReturn func(ctx context.Context, threadID string, result domain.ToolResult)
	OnVerdict    func(ctx context.Context, threadID string, j domain.EvaluatorJudgment)
}

// Graph runs Worker → Tools → Worker … → Evaluator → End | Worker.
type Graph struct {
	worker    *Worker
	tools     ToolInvoker
	evaluator *Evaluator
	maxCycles int
	hooks     []Hooks
	logger    *slog.Logger
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithMaxEvaluatorCycles sets the per-turn evaluator bound.
func WithMaxEvaluatorCycles(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxCycles = n
		}
	}
}

// WithHooks adds observers. Multiple sets are called in order.
func WithHooks(h Hooks) GraphOption {
	return func(g *Graph) {
		g.hooks = append(g.hooks, h)
	}
}

// WithGraphLogger sets the graph logger.
func WithGraphLogger(logger *slog.Logger) GraphOption {
	return func(g *Graph) {
		g.logger = logger
	}
}

// NewGraph wires the three nodes.
func NewGraph(worker *Worker, tools ToolInvoker, evaluator *Evaluator, opts ...GraphOption) *Graph {
	g := &Graph{
		worker:    worker,
		tools:     tools,
		evaluator: evaluator,
		maxCycles: DefaultMaxEvaluatorCycles,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run drives state from Worker to End and returns the content of the final message.
// The state is checkpointed after every node step; an error leaves the last checkpoint in place.
func (g *Graph) Run(ctx context.Context, state *domain.ConversationState, checkpoint Checkpoint) (string, error) {
	node := NodeWorker
	for node != NodeEnd {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		g.enter(ctx, state.ThreadID, node)

		next, err := g.step(ctx, node, state)
		if err != nil {
			return "", err
		}

		if checkpoint != nil {
			if err := checkpoint(ctx, state); err != nil {
				return "", fmt.Errorf("checkpoint after %s: %w", node, err)
			}
		}

		g.leave(ctx, state.ThreadID, node, next)
		node = next
	}
	return state.LastText(), nil
}

func (g *Graph) step(ctx context.Context, node Node, state *domain.ConversationState) (Node, error) {
	switch node {
	case NodeWorker:
		reply, err := g.worker.Step(ctx, state)
		if err != nil {
			return "", err
		}
		state.Append(reply)
		if reply.HasToolCalls() {
			return NodeTools, nil
		}
		if isColdStartStop(reply) {
			// No automatic retry after a cold start.
			g.logger.Info("Fare service cold start, yielding to user", "thread_id", state.ThreadID)
			state.UserInputNeeded = true
			return NodeEnd, nil
		}
		return NodeEvaluator, nil

	case NodeTools:
		last, ok := state.LastMessage()
		if !ok || !last.HasToolCalls() {
			return "", fmt.Errorf("tools node entered without pending tool calls")
		}
		for _, call := range last.ToolCalls {
			result := g.tools.Invoke(ctx, call)
			if result.CallID == "" {
				result.CallID = call.ID
			}
			if result.Name == "" {
				result.Name = call.Name
			}
			state.Append(domain.ToolResultMessage(result))
			g.toolReturn(ctx, state.ThreadID, result)
		}
		return NodeWorker, nil

	case NodeEvaluator:
		judgment, err := g.evaluator.Evaluate(ctx, state)
		if err != nil {
			return "", err
		}
		state.ApplyJudgment(judgment)
		g.verdict(ctx, state.ThreadID, judgment)

		if state.Done() {
			return NodeEnd, nil
		}
		if state.Cycles >= g.maxCycles {
			g.logger.Warn("Evaluator cycle limit reached, yielding to user",
				"thread_id", state.ThreadID,
				"cycles", state.Cycles,
				"feedback", judgment.Feedback,
			)
			state.UserInputNeeded = true
			return NodeEnd, nil
		}
		return NodeWorker, nil

	default:
		return "", fmt.Errorf("unknown node %q", node)
	}
}

func (g *Graph) enter(ctx context.Context, threadID string, node Node) {
	g.logger.Debug("node_enter", "thread_id", threadID, "node", node)
	for _, h := range g.hooks {
		if h.OnNodeEnter != nil {
			h.OnNodeEnter(ctx, NodeEvent{ThreadID: threadID, Node: node})
		}
	}
}

func (g *Graph) leave(ctx context.Context, threadID string, node, next Node) {
	g.logger.Debug("node_leave", "thread_id", threadID, "node", node, "next", next)
	for _, h := range g.hooks {
		if h.OnNodeLeave != nil {
			h.OnNodeLeave(ctx, NodeEvent{ThreadID: threadID, Node: node, Next: next})
		}
	}
}

func (g *Graph) toolReturn(ctx context.Context, threadID string, result domain.ToolResult) {
	g.logger.Info("tool_return", "thread_id", threadID, "tool", result.Name, "is_error", result.IsError)
	for _, h := range g.hooks {
		if h.OnToolReturn != nil {
			h.OnToolReturn(ctx, threadID, result)
		}
	}
}

func (g *Graph) verdict(ctx context.Context, threadID string, j domain.EvaluatorJudgment) {
	g.logger.Info("evaluator_verdict",
		"thread_id", threadID,
		"success_criteria_met", j.SuccessCriteriaMet,
		"user_input_needed", j.UserInputNeeded,
	)
	for _, h := range g.hooks {
		if h.OnVerdict != nil {
			h.OnVerdict(ctx, threadID, j)
		}
	}
}
