package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/kory-ai/workbench-core/internal/model"
)

// streamer adapts the Anthropic SSE stream to model.Streamer, translating
// each server-sent event into zero or more model.Chunk values. Adapted from
// the teacher's anthropicStreamer/anthropicChunkProcessor pair
// (features/model/anthropic/stream.go): a buffered channel fed by a
// background goroutine draining the SSE stream, with tool_use input
// fragments accumulated per content-block index and finalized into a
// single ChunkToolCall on ContentBlockStopEvent.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	chunks chan model.Chunk

	mu       sync.Mutex
	finalErr error
	errSet   bool
}

func newStreamer(st *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamer{ctx: ctx, cancel: cancel, stream: st, chunks: make(chan model.Chunk, 32)}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		return model.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return s.stream.Close()
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

type toolBuffer struct {
	id, name  string
	fragments []string
}

func (tb *toolBuffer) finalInput() json.RawMessage {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(joined)
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer s.stream.Close()

	tools := make(map[int64]*toolBuffer)
	var stopReason string

	emit := func(c model.Chunk) bool {
		select {
		case <-s.ctx.Done():
			return false
		case s.chunks <- c:
			return true
		}
	}

	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				tools[ev.Index] = &toolBuffer{id: tu.ID, name: tu.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					if !emit(model.Chunk{
						Type: model.ChunkText,
						Message: &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: delta.Text}}},
					}) {
						return
					}
				}
			case sdk.InputJSONDelta:
				if tb := tools[ev.Index]; tb != nil && delta.PartialJSON != "" {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
					if !emit(model.Chunk{
						Type:          model.ChunkToolCallDelta,
						ToolCallDelta: &model.ToolCallDelta{ID: tb.id, Name: tb.name, Delta: delta.PartialJSON},
					}) {
						return
					}
				}
			case sdk.ThinkingDelta:
				if delta.Thinking != "" {
					if !emit(model.Chunk{Type: model.ChunkThinking, Message: &model.Message{
						Role:  model.RoleAssistant,
						Parts: []model.Part{model.ThinkingPart{Text: delta.Thinking, Index: int(ev.Index)}},
					}}) {
						return
					}
				}
			}
		case sdk.ContentBlockStopEvent:
			if tb := tools[ev.Index]; tb != nil {
				delete(tools, ev.Index)
				if !emit(model.Chunk{
					Type:     model.ChunkToolCall,
					ToolCall: &model.ToolCall{ID: tb.id, Name: tb.name, Payload: tb.finalInput()},
				}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage := model.TokenUsage{
				InputTokens:      int(ev.Usage.InputTokens),
				OutputTokens:     int(ev.Usage.OutputTokens),
				TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
				CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
				CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
			}
			if !emit(model.Chunk{Type: model.ChunkUsage, UsageDelta: &usage}) {
				return
			}
		case sdk.MessageStopEvent:
			if !emit(model.Chunk{Type: model.ChunkStop, StopReason: stopReason}) {
				return
			}
		}
	}
	if err := s.stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.setErr(translateErr(err))
	}
}
