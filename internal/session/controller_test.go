// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanochat/nanochat-go/internal/gateway"
	"github.com/nanochat/nanochat-go/internal/model"
)

// fakeBackend scripts the backend's poll responses tick by tick.
type fakeBackend struct {
	mu sync.Mutex

	generateResp model.GenerationResponse
	generateErr  error

	// ticks[i] is the state returned on the i-th ListMessages call; the
	// last entry repeats once the script is exhausted.
	ticks []pollTick

	// omitConversation leaves conv-1 out of the conversation listing, as a
	// filtered or paginated backend would.
	omitConversation bool

	calls int
}

type pollTick struct {
	messages   []model.Message
	messageErr error
	generating bool
}

func (f *fakeBackend) GenerateMessage(ctx context.Context, req model.GenerationRequest) (model.GenerationResponse, error) {
	if f.generateErr != nil {
		return model.GenerationResponse{}, f.generateErr
	}
	return f.generateResp, nil
}

func (f *fakeBackend) ListConversations(ctx context.Context, opts gateway.ConversationListOptions) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.omitConversation {
		return []model.Conversation{{ID: "conv-other", Title: "other"}}, nil
	}
	tick := f.currentTick()
	return []model.Conversation{
		{ID: "conv-1", Title: "test", Generating: tick.generating},
	}, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	tick := f.currentTick()
	f.calls++
	f.mu.Unlock()

	if tick.messageErr != nil {
		return nil, tick.messageErr
	}
	return tick.messages, nil
}

func (f *fakeBackend) currentTick() pollTick {
	if len(f.ticks) == 0 {
		return pollTick{}
	}
	i := f.calls
	if i >= len(f.ticks) {
		i = len(f.ticks) - 1
	}
	return f.ticks[i]
}

// recordingNotifier captures MessageReceived calls.
type recordingNotifier struct {
	mu       sync.Mutex
	received []model.Message
}

func (n *recordingNotifier) MessageReceived(conv model.Conversation, msg model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, msg)
}

func fastOptions(maxTicks int) Options {
	return Options{
		PollInterval:             time.Millisecond,
		PollDeadline:             time.Duration(maxTicks) * time.Millisecond,
		ConversationRefreshEvery: 1,
	}
}

func userMsg(content string) model.Message {
	return model.Message{ID: "m-user", Role: model.RoleUser, Content: content}
}

func assistantMsg(content string) model.Message {
	return model.Message{ID: "m-assistant", Role: model.RoleAssistant, Content: content}
}

func TestSend_EmptyRequest(t *testing.T) {
	c := New(&fakeBackend{}, nil, fastOptions(5), zerolog.Nop())

	_, err := c.Send(context.Background(), model.GenerationRequest{})
	if !errors.Is(err, ErrEmptySend) {
		t.Fatalf("Send() error = %v, want ErrEmptySend", err)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %v, want idle", c.State())
	}
}

func TestSend_SubmitFailureIsTerminal(t *testing.T) {
	backend := &fakeBackend{generateErr: errors.New("boom")}
	c := New(backend, nil, fastOptions(5), zerolog.Nop())

	_, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if err == nil {
		t.Fatal("Send() error = nil, want submit error")
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
	if c.Generating() {
		t.Error("Generating() = true after terminal state")
	}
}

func TestSend_CompletesWhenTurnFinishes(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi")}, generating: true},
			{messages: []model.Message{userMsg("hi"), assistantMsg("hello")}, generating: false},
		},
	}
	notifier := &recordingNotifier{}
	c := New(backend, notifier, fastOptions(10), zerolog.Nop())

	result, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", result.ConversationID)
	}
	if result.Message.Content != "hello" {
		t.Errorf("Message.Content = %q, want hello", result.Message.Content)
	}
	if c.State() != StateComplete {
		t.Errorf("State() = %v, want complete", c.State())
	}
	if c.Generating() {
		t.Error("Generating() = true after completion")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.received) != 1 {
		t.Fatalf("notifier received %d messages, want 1", len(notifier.received))
	}
	if notifier.received[0].Content != "hello" {
		t.Errorf("notified content = %q, want hello", notifier.received[0].Content)
	}
}

func TestSend_InFlightContentDoesNotTerminate(t *testing.T) {
	// The assistant message exists but is empty while the conversation still
	// reports generating; the loop must keep polling until both clear.
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi"), assistantMsg("")}, generating: true},
			{messages: []model.Message{userMsg("hi"), assistantMsg("")}, generating: false},
			{messages: []model.Message{userMsg("hi"), assistantMsg("partial")}, generating: true},
			{messages: []model.Message{userMsg("hi"), assistantMsg("done")}, generating: false},
		},
	}
	c := New(backend, nil, fastOptions(20), zerolog.Nop())

	result, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Message.Content != "done" {
		t.Errorf("Message.Content = %q, want done", result.Message.Content)
	}

	backend.mu.Lock()
	calls := backend.calls
	backend.mu.Unlock()
	if calls < 4 {
		t.Errorf("poll ticks = %d, want at least 4", calls)
	}
}

func TestSend_DeadlineExhaustedTimesOut(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi")}, generating: true},
		},
	}
	c := New(backend, nil, fastOptions(3), zerolog.Nop())

	_, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if !errors.Is(err, ErrGenerationTimedOut) {
		t.Fatalf("Send() error = %v, want ErrGenerationTimedOut", err)
	}
	if c.State() != StateTimedOut {
		t.Errorf("State() = %v, want timed-out", c.State())
	}
	if c.Generating() {
		t.Error("Generating() = true after timeout")
	}
}

func TestSend_TickErrorIsTolerated(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messageErr: errors.New("transient")},
			{messages: []model.Message{userMsg("hi"), assistantMsg("recovered")}, generating: false},
		},
	}
	c := New(backend, nil, fastOptions(10), zerolog.Nop())

	result, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Message.Content != "recovered" {
		t.Errorf("Message.Content = %q, want recovered", result.Message.Content)
	}
}

func TestSend_ContextCancellation(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi")}, generating: true},
		},
	}
	c := New(backend, nil, Options{
		PollInterval:             50 * time.Millisecond,
		PollDeadline:             time.Minute,
		ConversationRefreshEvery: 1,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Send(ctx, model.GenerationRequest{Text: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
	if c.Generating() {
		t.Error("Generating() = true after cancellation")
	}
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	c := New(&fakeBackend{}, nil, fastOptions(5), zerolog.Nop())

	c.mu.Lock()
	c.generating = true
	c.mu.Unlock()

	_, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("Send() error = %v, want ErrSendInFlight", err)
	}
}

func TestRegenerate_BeforeAnySend(t *testing.T) {
	c := New(&fakeBackend{}, nil, fastOptions(5), zerolog.Nop())

	_, err := c.Regenerate(context.Background())
	if !errors.Is(err, ErrNothingToRegenerate) {
		t.Fatalf("Regenerate() error = %v, want ErrNothingToRegenerate", err)
	}
}

func TestRegenerate_ReusesLastRequest(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi"), assistantMsg("first")}, generating: false},
		},
	}
	c := New(backend, nil, fastOptions(10), zerolog.Nop())

	first, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi", ModelID: "m1"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	backend.mu.Lock()
	backend.calls = 0
	backend.ticks = []pollTick{
		{messages: []model.Message{userMsg("hi"), assistantMsg("second")}, generating: false},
	}
	backend.mu.Unlock()

	second, err := c.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Errorf("Regenerate conversation = %q, want %q", second.ConversationID, first.ConversationID)
	}
	if second.Message.Content != "second" {
		t.Errorf("Message.Content = %q, want second", second.Message.Content)
	}
}

func TestRegenerate_UnavailableAfterConversationSwitch(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi"), assistantMsg("first")}, generating: false},
		},
	}
	c := New(backend, nil, fastOptions(10), zerolog.Nop())

	if _, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	c.SwitchConversation("conv-2")

	_, err := c.Regenerate(context.Background())
	if !errors.Is(err, ErrNothingToRegenerate) {
		t.Fatalf("Regenerate() after switch error = %v, want ErrNothingToRegenerate", err)
	}
	if msgs := c.Messages(); len(msgs) != 0 {
		t.Errorf("Messages() after switch has %d entries, want 0", len(msgs))
	}
}

func TestSwitchConversation_SameConversationKeepsTurn(t *testing.T) {
	backend := &fakeBackend{
		generateResp: model.GenerationResponse{ConversationID: "conv-1"},
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi"), assistantMsg("first")}, generating: false},
		},
	}
	c := New(backend, nil, fastOptions(10), zerolog.Nop())

	if _, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	c.SwitchConversation("conv-1")

	backend.mu.Lock()
	backend.calls = 0
	backend.ticks = []pollTick{
		{messages: []model.Message{userMsg("hi"), assistantMsg("second")}, generating: false},
	}
	backend.mu.Unlock()

	result, err := c.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", result.ConversationID)
	}
}

func TestSend_CompletesWhenListingOmitsConversation(t *testing.T) {
	// The conversation never appears in the listing; once the assistant
	// message is complete the send must finish instead of running out the
	// deadline.
	backend := &fakeBackend{
		generateResp:     model.GenerationResponse{ConversationID: "conv-1"},
		omitConversation: true,
		ticks: []pollTick{
			{messages: []model.Message{userMsg("hi")}},
			{messages: []model.Message{userMsg("hi"), assistantMsg("hello")}},
		},
	}
	c := New(backend, nil, fastOptions(10), zerolog.Nop())

	result, err := c.Send(context.Background(), model.GenerationRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", result.ConversationID)
	}
	if result.Conversation.ID != "" {
		t.Errorf("Conversation.ID = %q, want empty snapshot", result.Conversation.ID)
	}
	if c.State() != StateComplete {
		t.Errorf("State() = %v, want complete", c.State())
	}
}

func TestOptions_MaxTicks(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		deadline time.Duration
		want     int
	}{
		{"default ratio", time.Second, 2 * time.Minute, 120},
		{"exact", 10 * time.Millisecond, 30 * time.Millisecond, 3},
		{"deadline below interval", time.Second, time.Millisecond, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{PollInterval: tt.interval, PollDeadline: tt.deadline}
			if got := opts.maxTicks(); got != tt.want {
				t.Errorf("maxTicks() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateSubmitting, "submitting"},
		{StatePolling, "polling"},
		{StateComplete, "complete"},
		{StateTimedOut, "timed-out"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
