// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one "submit user turn, observe assistant turn
// complete" cycle against the NanoChat backend.
//
// The backend acknowledges a generation request immediately and produces
// the assistant message asynchronously; the controller polls the
// conversation's message list until the turn is complete, the configured
// deadline is exhausted, or the context is cancelled.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nanochat/nanochat-go/internal/gateway"
	"github.com/nanochat/nanochat-go/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptySend indicates a send with no text and no attachments.
	ErrEmptySend = errors.New("nothing to send")

	// ErrSendInFlight indicates a send was issued while another send on the
	// same controller was still generating.
	ErrSendInFlight = errors.New("a send is already in flight")

	// ErrGenerationTimedOut indicates the poll deadline was exhausted
	// before the assistant turn completed.
	ErrGenerationTimedOut = errors.New("generation timed out")

	// ErrNothingToRegenerate indicates Regenerate was called before any
	// successful send on this controller.
	ErrNothingToRegenerate = errors.New("no previous turn to regenerate")
)

// =============================================================================
// STATES
// =============================================================================

// State is the controller's position in the send cycle.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StatePolling
	StateComplete
	StateTimedOut
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateComplete:
		return "complete"
	case StateTimedOut:
		return "timed-out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is the slice of the gateway the controller needs.
type Backend interface {
	GenerateMessage(ctx context.Context, req model.GenerationRequest) (model.GenerationResponse, error)
	ListConversations(ctx context.Context, opts gateway.ConversationListOptions) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Notifier receives the completion signal for a finished assistant turn.
// Implementations handle presentation side effects (sound, badge, banner).
type Notifier interface {
	MessageReceived(conv model.Conversation, msg model.Message)
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the polling behavior of a controller.
type Options struct {
	// PollInterval is the pacing between poll ticks.
	PollInterval time.Duration

	// PollDeadline bounds the total polling time for one send.
	PollDeadline time.Duration

	// ConversationRefreshEvery refreshes the conversation list on every
	// Nth tick; the message list is refreshed on every tick.
	ConversationRefreshEvery int
}

// DefaultOptions returns the standard polling configuration: one-second
// ticks, a two-minute deadline, conversation refresh every third tick.
func DefaultOptions() Options {
	return Options{
		PollInterval:             time.Second,
		PollDeadline:             2 * time.Minute,
		ConversationRefreshEvery: 3,
	}
}

// normalize fills zero fields with defaults.
func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollDeadline <= 0 {
		o.PollDeadline = def.PollDeadline
	}
	if o.ConversationRefreshEvery <= 0 {
		o.ConversationRefreshEvery = def.ConversationRefreshEvery
	}
	return o
}

// maxTicks is the poll iteration bound derived from deadline and interval.
func (o Options) maxTicks() int {
	n := int(o.PollDeadline / o.PollInterval)
	if n < 1 {
		n = 1
	}
	return n
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one conversation's send cycle and the observable
// conversation/message snapshots it refreshes while polling.
//
// A controller allows one send at a time; independent conversations get
// independent controllers, and nothing orders their ticks relative to each
// other.
type Controller struct {
	backend  Backend
	notifier Notifier
	opts     Options
	logger   zerolog.Logger

	mu            sync.Mutex
	state         State
	generating    bool
	sendID        string
	conversations []model.Conversation
	messages      []model.Message
	lastReq       *model.GenerationRequest
}

// New creates a controller. notifier may be nil.
func New(backend Backend, notifier Notifier, opts Options, logger zerolog.Logger) *Controller {
	return &Controller{
		backend:  backend,
		notifier: notifier,
		opts:     opts.normalize(),
		logger:   logger.With().Str("component", "session").Logger(),
		state:    StateIdle,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generating reports whether a send is in flight.
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// Conversations returns the latest conversation list snapshot.
func (c *Controller) Conversations() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Messages returns the latest message list snapshot for the active
// conversation.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// =============================================================================
// SEND
// =============================================================================

// Result is the outcome of a completed send.
type Result struct {
	ConversationID string
	Conversation   model.Conversation
	Message        model.Message
}

// Send submits one user turn and polls until the assistant turn completes.
//
// Send fails immediately with ErrEmptySend when the request carries neither
// text nor attachments, and with ErrSendInFlight when this controller is
// already generating. A submit failure is terminal for the send. Deadline
// exhaustion returns ErrGenerationTimedOut; in every terminal state the
// generating flag is cleared.
func (c *Controller) Send(ctx context.Context, req model.GenerationRequest) (*Result, error) {
	if !req.HasContent() {
		return nil, ErrEmptySend
	}

	sendID := uuid.New().String()

	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.generating = true
	c.state = StateSubmitting
	c.sendID = sendID
	c.mu.Unlock()

	logger := c.logger.With().Str("send_id", sendID).Logger()
	logger.Debug().Str("model", req.ModelID).Msg("submitting turn")

	resp, err := c.backend.GenerateMessage(ctx, req)
	if err != nil {
		c.finish(StateFailed)
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = resp.ConversationID
	}

	remembered := req
	remembered.ConversationID = conversationID
	c.mu.Lock()
	c.lastReq = &remembered
	c.state = StatePolling
	c.mu.Unlock()

	result, err := c.poll(ctx, logger, conversationID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SwitchConversation points the controller at a different conversation.
// The remembered turn and message snapshot belong to the previous
// conversation, so both are dropped; Regenerate is unavailable until the
// next send. Switching to the conversation of the remembered turn is a
// no-op.
func (c *Controller) SwitchConversation(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastReq != nil && conversationID != "" && c.lastReq.ConversationID == conversationID {
		return
	}
	c.lastReq = nil
	c.messages = nil
}

// Regenerate resends the last user turn with the same model, provider, and
// web-search settings under the same conversation id. The backend appends
// a second assistant turn rather than replacing the first.
func (c *Controller) Regenerate(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	last := c.lastReq
	lastUser := model.LastUserMessage(c.messages)
	c.mu.Unlock()

	if last == nil {
		return nil, ErrNothingToRegenerate
	}

	req := *last
	if lastUser != nil {
		req.Text = lastUser.Content
		req.Images = lastUser.Images
		req.Documents = lastUser.Documents
	}
	return c.Send(ctx, req)
}

// finish records a terminal state and clears the generating flag.
func (c *Controller) finish(state State) {
	c.mu.Lock()
	c.state = state
	c.generating = false
	c.mu.Unlock()
}

// =============================================================================
// POLL LOOP
// =============================================================================

// poll repeatedly refreshes conversation and message state until the
// assistant turn is complete or the tick bound is exhausted.
//
// The terminal condition requires all three at once: the latest message has
// role assistant, its content is non-empty, and the conversation's
// server-reported generating flag is false. When a successful listing omits
// the conversation (filtered or paginated backend), the flag is unknowable
// through the listing, so the complete message alone decides. A fetch
// failure on a single tick is logged and tolerated; the loop continues on
// the next tick.
func (c *Controller) poll(ctx context.Context, logger zerolog.Logger, conversationID string) (*Result, error) {
	limiter := rate.NewLimiter(rate.Every(c.opts.PollInterval), 1)
	maxTicks := c.opts.maxTicks()

	listedOK := false

	for tick := 0; tick < maxTicks; tick++ {
		if err := limiter.Wait(ctx); err != nil {
			c.finish(StateFailed)
			return nil, err
		}

		// Conversation refresh precedes message refresh within a tick.
		if tick%c.opts.ConversationRefreshEvery == 0 {
			convs, err := c.backend.ListConversations(ctx, gateway.ConversationListOptions{})
			if err != nil {
				logger.Warn().Err(err).Int("tick", tick).Msg("conversation refresh failed")
			} else {
				listedOK = true
				c.mu.Lock()
				c.conversations = convs
				c.mu.Unlock()
			}
		}

		msgs, err := c.backend.ListMessages(ctx, conversationID)
		if err != nil {
			logger.Warn().Err(err).Int("tick", tick).Msg("message refresh failed")
			continue
		}

		c.mu.Lock()
		c.messages = msgs
		conv := model.FindConversation(c.conversations, conversationID)
		var snapshot model.Conversation
		if conv != nil {
			snapshot = *conv
		}
		c.mu.Unlock()

		last := model.LatestMessage(msgs)
		done := last != nil && last.IsComplete()
		if done {
			if conv != nil {
				done = !snapshot.Generating
			} else {
				done = listedOK
			}
		}
		if done {
			c.finish(StateComplete)
			logger.Debug().Int("tick", tick).Msg("assistant turn complete")
			if c.notifier != nil {
				c.notifier.MessageReceived(snapshot, *last)
			}
			return &Result{
				ConversationID: conversationID,
				Conversation:   snapshot,
				Message:        *last,
			}, nil
		}
	}

	c.finish(StateTimedOut)
	logger.Warn().Str("conversation_id", conversationID).Msg("poll deadline exhausted")
	return nil, ErrGenerationTimedOut
}
