package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/genai-kitchen/internal/state"
)

// SaveTimeout bounds a single save triggered by a state transition.
const SaveTimeout = 10 * time.Second

// Exporter produces the document to persist, e.g. a history store.
type Exporter interface {
	Export() ([]byte, error)
}

// Importer accepts a previously exported document.
type Importer interface {
	Import(data []byte) bool
}

// Persister saves the exporter's document after every state transition.
// Subscribe it after the history recorder so the save includes the newest entry.
type Persister[S any] struct {
	sink     Sink
	name     string
	exporter Exporter
}

// NewPersister creates a subscriber saving exporter's document under name.
func NewPersister[S any](sink Sink, name string, exporter Exporter) *Persister[S] {
	return &Persister[S]{sink: sink, name: name, exporter: exporter}
}

// OnTransition implements state.Subscriber. Failures are logged, never returned.
func (p *Persister[S]) OnTransition(t state.Transition[S]) {
	ctx, cancel := context.WithTimeout(context.Background(), SaveTimeout)
	defer cancel()
	if err := p.Save(ctx); err != nil {
		log.Warn().Err(err).Str("name", p.name).Str("action", t.Action).Msg("Failed to persist history")
	}
}

// Save compresses and writes the current document.
func (p *Persister[S]) Save(ctx context.Context) error {
	data, err := p.exporter.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := p.sink.Save(ctx, p.name, Compress(data)); err != nil {
		return err
	}
	log.Debug().Str("name", p.name).Int("rawBytes", len(data)).Msg("History persisted")
	return nil
}

// Restore loads the document saved under name into imp. It returns false
// with a nil error when nothing has been saved yet.
func Restore(ctx context.Context, sink Sink, name string, imp Importer) (bool, error) {
	data, err := sink.Load(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	raw, err := Decompress(data)
	if err != nil {
		return false, err
	}
	if !imp.Import(raw) {
		return false, fmt.Errorf("persist: saved history %q is not a valid export", name)
	}
	return true, nil
}
