// Package dispatch invokes the selected agent and normalizes every failure
// into a safe textual reply.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agenthub/internal/domain"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 2048
	defaultTopK      = 3
)

// Executor wraps the completion provider as the agent-invocation
// collaborator. Dispatch never propagates an error to the orchestrator's
// caller: failures degrade to an apologetic reply naming the agent and the
// error, with a non-nil error returned only so the audit trail can record
// what actually happened.
type Executor struct {
	provider  domain.CompletionProvider
	knowledge domain.KnowledgeSearcher
	timeout   time.Duration
	maxTokens int
	topK      int
	logger    *slog.Logger
}

type ExecutorConfig struct {
	Provider  domain.CompletionProvider
	Knowledge domain.KnowledgeSearcher // optional
	Timeout   time.Duration
	MaxTokens int
	TopK      int // knowledge snippets per dispatch
	Logger    *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		provider:  cfg.Provider,
		knowledge: cfg.Knowledge,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		topK:      cfg.TopK,
		logger:    cfg.Logger,
	}
}

// Dispatch sends the message to the agent and returns its reply. On any
// failure the reply is the safe fallback text, usage is nil, and the error
// reports the cause for the audit trail.
func (e *Executor) Dispatch(ctx context.Context, agent domain.Agent, message string, recent []domain.Turn) (string, *domain.Usage, error) {
	if e.provider == nil {
		err := fmt.Errorf("no completion provider configured")
		return FallbackReply(agent, err), nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Complete(callCtx, domain.CompletionRequest{
		System:      e.systemPrompt(callCtx, agent, message),
		Prompt:      buildAgentPrompt(message, recent),
		MaxTokens:   e.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		e.logger.Warn("agent dispatch failed",
			"agent", agent.ID,
			"err", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return FallbackReply(agent, err), nil, fmt.Errorf("dispatch %s: %w", agent.ID, err)
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		err := fmt.Errorf("empty response")
		return FallbackReply(agent, err), nil, fmt.Errorf("dispatch %s: %w", agent.ID, err)
	}

	e.logger.Info("agent dispatched",
		"agent", agent.ID,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"tokens", resp.Usage.TotalTokens,
	)
	usage := resp.Usage
	return reply, &usage, nil
}

// systemPrompt builds the agent's persona prompt, augmented with knowledge
// snippets when the agent has documents attached. Knowledge lookup failures
// only cost the snippets, never the dispatch.
func (e *Executor) systemPrompt(ctx context.Context, agent domain.Agent, message string) string {
	prompt := agent.SystemPrompt
	if prompt == "" {
		prompt = fmt.Sprintf("You are %s. %s", agent.Name, agent.Description)
	}

	if !agent.Knowledge || e.knowledge == nil {
		return prompt
	}

	snippets, err := e.knowledge.Search(ctx, agent.ID, message, e.topK)
	if err != nil {
		e.logger.Warn("knowledge search failed", "agent", agent.ID, "err", err)
		return prompt
	}
	if len(snippets) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n## Relevant knowledge\n")
	for _, s := range snippets {
		fmt.Fprintf(&sb, "### %s\n%s\n\n", s.Title, s.Snippet)
	}
	return sb.String()
}

func buildAgentPrompt(message string, recent []domain.Turn) string {
	if len(recent) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, t := range recent {
		fmt.Fprintf(&sb, "user: %s\n", t.UserMessage)
		fmt.Fprintf(&sb, "you: %s\n", t.AgentReply)
	}
	sb.WriteString("\nuser: ")
	sb.WriteString(message)
	return sb.String()
}

// FallbackReply is the templated apology returned when an agent cannot
// answer. The underlying error is embedded for operator visibility.
func FallbackReply(agent domain.Agent, err error) string {
	return fmt.Sprintf("I'm sorry — %s couldn't process your message right now (%v). Please try again or rephrase your request.",
		agent.Name, err)
}
