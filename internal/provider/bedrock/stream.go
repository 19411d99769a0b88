package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kory-ai/workbench-core/internal/model"
)

// streamer adapts a Bedrock ConverseStream event stream to model.Streamer.
// Adapted from the teacher's bedrockStreamer/chunkProcessor pair
// (features/model/bedrock/stream.go), dropping citation tracking (not a
// part kind internal/model carries).
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream
	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error

	nameMap map[string]string
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream, nameMap map[string]string) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan model.Chunk, 32), nameMap: nameMap}
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

func (s *streamer) run() {
	defer close(s.chunks)
	defer s.stream.Close()

	tools := make(map[int]*toolBuffer)
	reasoning := make(map[int]*reasoningBuffer)

	emit := func(c model.Chunk) bool {
		select {
		case <-s.ctx.Done():
			return false
		case s.chunks <- c:
			return true
		}
	}

	events := s.stream.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				if err := s.stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
					s.setErr(translateErr(err))
				}
				return
			}
			if !s.handle(event, tools, reasoning, emit) {
				return
			}
		}
	}
}

func (s *streamer) handle(event any, tools map[int]*toolBuffer, reasoning map[int]*reasoningBuffer, emit func(model.Chunk) bool) bool {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := contentIndex(ev.Value.ContentBlockIndex)
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			tools[idx] = &toolBuffer{id: aws32(start.Value.ToolUseId), name: aws32(start.Value.Name)}
		}
		return true
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := contentIndex(ev.Value.ContentBlockIndex)
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return true
			}
			return emit(model.Chunk{Type: model.ChunkText, Message: &model.Message{
				Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: delta.Value}},
			}})
		case *brtypes.ContentBlockDeltaMemberReasoningContent:
			rb := reasoning[idx]
			if rb == nil {
				rb = &reasoningBuffer{}
				reasoning[idx] = rb
			}
			switch v := delta.Value.(type) {
			case *brtypes.ReasoningContentBlockDeltaMemberText:
				if v.Value == "" {
					return true
				}
				rb.text.WriteString(v.Value)
				return emit(model.Chunk{Type: model.ChunkThinking, Message: &model.Message{
					Role: model.RoleAssistant, Parts: []model.Part{model.ThinkingPart{Text: v.Value, Index: idx}},
				}})
			case *brtypes.ReasoningContentBlockDeltaMemberSignature:
				rb.signature = v.Value
			}
			return true
		case *brtypes.ContentBlockDeltaMemberToolUse:
			tb := tools[idx]
			if tb == nil || delta.Value.Input == nil {
				return true
			}
			fragment := *delta.Value.Input
			tb.fragments = append(tb.fragments, fragment)
			return emit(model.Chunk{
				Type:          model.ChunkToolCallDelta,
				ToolCallDelta: &model.ToolCallDelta{ID: tb.id, Name: s.canonical(tb.name), Delta: fragment},
			})
		}
		return true
	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := contentIndex(ev.Value.ContentBlockIndex)
		if rb := reasoning[idx]; rb != nil {
			delete(reasoning, idx)
			if rb.text.Len() > 0 {
				if !emit(model.Chunk{Type: model.ChunkThinking, Message: &model.Message{
					Role: model.RoleAssistant,
					Parts: []model.Part{model.ThinkingPart{Text: rb.text.String(), Signature: rb.signature, Index: idx, Final: true}},
				}}) {
					return false
				}
			}
		}
		if tb := tools[idx]; tb != nil {
			delete(tools, idx)
			return emit(model.Chunk{
				Type:     model.ChunkToolCall,
				ToolCall: &model.ToolCall{ID: tb.id, Name: s.canonical(tb.name), Payload: tb.finalInput()},
			})
		}
		return true
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return emit(model.Chunk{Type: model.ChunkStop, StopReason: string(ev.Value.StopReason)})
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return true
		}
		u := ev.Value.Usage
		usage := model.TokenUsage{
			InputTokens:      int(ptrValue(u.InputTokens)),
			OutputTokens:     int(ptrValue(u.OutputTokens)),
			TotalTokens:      int(ptrValue(u.TotalTokens)),
			CacheReadTokens:  int(ptrValue(u.CacheReadInputTokens)),
			CacheWriteTokens: int(ptrValue(u.CacheWriteInputTokens)),
		}
		return emit(model.Chunk{Type: model.ChunkUsage, UsageDelta: &usage})
	}
	return true
}

func (s *streamer) canonical(sanitized string) string {
	if canonical, ok := s.nameMap[sanitized]; ok {
		return canonical
	}
	return sanitized
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

type reasoningBuffer struct {
	text      strings.Builder
	signature string
}

func contentIndex(idx *int32) int {
	if idx == nil {
		return 0
	}
	return int(*idx)
}

func aws32(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
