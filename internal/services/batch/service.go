package batch

import (
	"context"
	"fmt"
	"io"

	"github.com/TheMichaelB/jcrypt/internal/config"
	"github.com/TheMichaelB/jcrypt/internal/crypto"
	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/state"
	"github.com/TheMichaelB/jcrypt/internal/storage"
)

// Service wires the engine to the configured file store and run history.
type Service struct {
	engine  *Engine
	history state.Store
	logger  *events.Logger
}

// NewService builds a service from configuration. Results routed to stdout go to output.
func NewService(cfg *config.Config, output io.Writer, logger *events.Logger) (*Service, error) {
	store := storage.NewLocalStore(logger)
	store.SetMaxFileSize(cfg.Crypt.MaxFileSize)

	var history state.Store
	if cfg.History.Enabled {
		h, err := state.Open(&cfg.History, logger)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		history = h
	}

	engine := NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, history, output, logger)

	return &Service{
		engine:  engine,
		history: history,
		logger:  logger.WithField("service", "batch"),
	}, nil
}

// Run executes a batch.
func (s *Service) Run(ctx context.Context, req *Request) (*Report, error) {
	return s.engine.Run(ctx, req)
}

// History returns the run store, or nil when history is disabled.
func (s *Service) History() state.Store {
	return s.history
}

// GetProgress returns batch progress.
func (s *Service) GetProgress() *Progress {
	return s.engine.GetProgress()
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.engine.Events()
}

// Cancel stops an ongoing batch.
func (s *Service) Cancel() {
	s.engine.Cancel()
}

// Close releases the history store.
func (s *Service) Close() error {
	if s.history == nil {
		return nil
	}
	return s.history.Close()
}
