package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLSink appends one JSON object per line to a file, fsyncing is left to
// the OS page cache; a trace sink is a diagnostics aid, not the durability
// boundary (that's C2/C4).
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONLSink opens (creating if needed, appending otherwise) the JSONL
// file at path.
func OpenJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: failed to open sink: %w", err)
	}
	return &JSONLSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes e as one JSON line.
func (s *JSONLSink) Append(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("trace: failed to append event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
