package assistant

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/metrics"
	"github.com/collab-hub/relay/internal/model"
)

// Rooms broadcasts an event to the members of a room.
type Rooms interface {
	Broadcast(roomKey, event string, payload any, exclude string) int
}

// Bridge streams provider answers to rooms. It keeps no state between
// requests.
type Bridge struct {
	provider Provider
	rooms    Rooms
	log      zerolog.Logger

	// mu orders wg.Add against Close so no request starts after Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewBridge creates a bridge that answers with provider and delivers to rooms.
func NewBridge(provider Provider, rooms Rooms) *Bridge {
	return &Bridge{
		provider: provider,
		rooms:    rooms,
		log:      log.With().Str("module", "assistant").Str("provider", provider.Name()).Logger(),
	}
}

// ErrClosed is returned by Go once the bridge is closed.
var ErrClosed = errors.New("assistant: bridge closed")

// Go validates req and answers it on a new goroutine bound to ctx.
func (b *Bridge) Go(ctx context.Context, req model.AIAskRequest) error {
	if req.RoomID == "" {
		return model.ErrRoomKeyRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Ask(ctx, req)
	}()
	return nil
}

// Wait blocks until every request started with Go has finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Close refuses new requests and waits for those started with Go. Callers
// cancel the requests' context first to cut them short.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

// Ask answers req. The room receives one chunk event per fragment, then
// exactly one complete event, or one error event as soon as the provider
// fails. The provider error is returned.
func (b *Bridge) Ask(ctx context.Context, req model.AIAskRequest) error {
	if req.RoomID == "" {
		return model.ErrRoomKeyRequired
	}

	intent := Classify(req.Message)
	prompt := BuildPrompt(intent, req)
	logger := b.log.With().Str("room", req.RoomID).Str("intent", string(intent)).Logger()
	logger.Debug().Msg("ai request")

	chunks := 0
	for fragment, err := range b.provider.Stream(ctx, prompt) {
		if err != nil {
			logger.Warn().Err(err).Int("chunks", chunks).Msg("ai request failed")
			b.send(req.RoomID, model.AIResponseEvent{
				RoomID: req.RoomID,
				Type:   model.AIResponseError,
				Error:  UserMessage(err),
			})
			metrics.AIRequest(string(intent), "error")
			return err
		}
		if fragment == "" {
			continue
		}
		chunks++
		b.send(req.RoomID, model.AIResponseEvent{
			RoomID:  req.RoomID,
			Type:    model.AIResponseChunk,
			Content: fragment,
		})
	}

	b.send(req.RoomID, model.AIResponseEvent{RoomID: req.RoomID, Type: model.AIResponseComplete})
	metrics.AIRequest(string(intent), "complete")
	logger.Debug().Int("chunks", chunks).Msg("ai request complete")
	return nil
}

func (b *Bridge) send(roomKey string, ev model.AIResponseEvent) {
	b.rooms.Broadcast(roomKey, model.EventAIResponse, ev, "")
}
