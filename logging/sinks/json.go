package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"rewind/server/logging"
)

// JSONSink appends events to a file as newline-delimited JSON, flushing in
// batches to keep the write path off the hot loop.
type JSONSink struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	pending  int
	maxBatch int
}

func NewJSONSink(cfg logging.JSONConfig) (*JSONSink, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("json sink: missing file path")
	}
	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("json sink: open %s: %w", cfg.FilePath, err)
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 32
	}
	return &JSONSink{
		file:     file,
		writer:   bufio.NewWriter(file),
		maxBatch: maxBatch,
	}, nil
}

func (s *JSONSink) Write(event logging.Event) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("json sink: marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("json sink: write: %w", err)
	}
	s.pending++
	if s.pending >= s.maxBatch {
		s.pending = 0
		if err := s.writer.Flush(); err != nil {
			return fmt.Errorf("json sink: flush: %w", err)
		}
	}
	return nil
}

func (s *JSONSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
