package provider

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"agenthub/internal/domain"
)

type fixedProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (p *fixedProvider) Name() string { return p.name }

func (p *fixedProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &domain.CompletionResponse{Text: p.text}, nil
}

func (p *fixedProvider) Healthy(ctx context.Context) error { return p.err }

func TestFailoverFirstSuccess(t *testing.T) {
	primary := &fixedProvider{name: "primary", text: "from primary"}
	backup := &fixedProvider{name: "backup", text: "from backup"}
	f := NewFailover([]domain.CompletionProvider{primary, backup}, slog.New(slog.DiscardHandler))

	resp, err := f.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from primary" {
		t.Fatalf("expected the primary's reply, got %q", resp.Text)
	}
	if backup.calls != 0 {
		t.Fatalf("backup must not be tried when the primary succeeds")
	}
}

func TestFailoverFallsThrough(t *testing.T) {
	primary := &fixedProvider{name: "primary", err: errors.New("down")}
	backup := &fixedProvider{name: "backup", text: "from backup"}
	f := NewFailover([]domain.CompletionProvider{primary, backup}, slog.New(slog.DiscardHandler))

	resp, err := f.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from backup" {
		t.Fatalf("expected the backup's reply, got %q", resp.Text)
	}
	if primary.calls != 1 {
		t.Fatalf("primary should have been tried first")
	}
}

func TestFailoverAllFail(t *testing.T) {
	cause := errors.New("last failure")
	f := NewFailover([]domain.CompletionProvider{
		&fixedProvider{name: "a", err: errors.New("first failure")},
		&fixedProvider{name: "b", err: cause},
	}, slog.New(slog.DiscardHandler))

	_, err := f.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatalf("expected an error when every provider fails")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("error should wrap the last failure, got %v", err)
	}
}

func TestFailoverName(t *testing.T) {
	f := NewFailover([]domain.CompletionProvider{
		&fixedProvider{name: "ollama"},
		&fixedProvider{name: "openai"},
	}, slog.New(slog.DiscardHandler))

	if got := f.Name(); got != "failover(ollama,openai)" {
		t.Fatalf("Name() = %q", got)
	}
}

func TestFailoverHealthy(t *testing.T) {
	f := NewFailover([]domain.CompletionProvider{
		&fixedProvider{name: "a", err: errors.New("sick")},
		&fixedProvider{name: "b"},
	}, slog.New(slog.DiscardHandler))
	if err := f.Healthy(context.Background()); err != nil {
		t.Fatalf("one healthy provider should be enough: %v", err)
	}

	allSick := NewFailover([]domain.CompletionProvider{
		&fixedProvider{name: "a", err: errors.New("sick")},
	}, slog.New(slog.DiscardHandler))
	if err := allSick.Healthy(context.Background()); err == nil {
		t.Fatalf("expected an error when no provider is healthy")
	}
}
