// Package kitchen ties the result cache, the debouncer, the image model and
// the workspace history together into the generation service used by the
// HTTP API and the CLI.
package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/genai-kitchen/internal/debounce"
	"github.com/fpang/genai-kitchen/internal/history"
	"github.com/fpang/genai-kitchen/internal/imageio"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/metrics"
	"github.com/fpang/genai-kitchen/internal/persist"
	"github.com/fpang/genai-kitchen/internal/resultcache"
	"github.com/fpang/genai-kitchen/internal/state"
)

// DefaultDuplicateWindow is how long an identical submission is rejected
// after the first one, unless a cached result already answers it.
const DefaultDuplicateWindow = 2 * time.Second

// DefaultWorkspace is the persistence name used when none is configured.
const DefaultWorkspace = "default"

// Publisher turns generated image bytes into a URL clients can fetch.
type Publisher interface {
	Publish(ctx context.Context, kind string, data []byte, mimeType string) (string, error)
}

// Service runs generations and tracks the workspace they change.
type Service struct {
	gen       inference.Generator
	publisher Publisher
	results   *resultcache.Cache
	recent    *resultcache.Cache
	debouncer *debounce.Debouncer
	history   *history.Store[Workspace]
	state     *state.Container[Workspace]
	dupWindow time.Duration
	maxDim    int
}

type config struct {
	publisher Publisher
	results   *resultcache.Cache
	sink      persist.Sink
	workspace string
	maxHist   int
	dupWindow time.Duration
	maxDim    int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*config)

// WithPublisher uploads results instead of returning data URIs.
func WithPublisher(p Publisher) Option {
	return func(c *config) { c.publisher = p }
}

// WithResultCache shares an existing cache.
func WithResultCache(rc *resultcache.Cache) Option {
	return func(c *config) { c.results = rc }
}

// WithPersistence restores the workspace history from sink at construction
// and saves it after every change.
func WithPersistence(sink persist.Sink, workspace string) Option {
	return func(c *config) {
		c.sink = sink
		if workspace != "" {
			c.workspace = workspace
		}
	}
}

// WithHistorySize bounds the workspace history.
func WithHistorySize(n int) Option {
	return func(c *config) { c.maxHist = n }
}

// WithDuplicateWindow overrides DefaultDuplicateWindow.
func WithDuplicateWindow(d time.Duration) Option {
	return func(c *config) { c.dupWindow = d }
}

// WithMaxDimension sets the longest edge sent to the model.
func WithMaxDimension(px int) Option {
	return func(c *config) { c.maxDim = px }
}

// WithClock injects the time source used by caches and history.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// NewService creates a Service. With persistence configured, a previously
// saved history is restored and the workspace resumes from its current entry.
func NewService(ctx context.Context, gen inference.Generator, opts ...Option) (*Service, error) {
	cfg := config{
		workspace: DefaultWorkspace,
		maxHist:   history.DefaultMaxSize,
		dupWindow: DefaultDuplicateWindow,
		maxDim:    imageio.DefaultMaxDimension,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.results == nil {
		cfg.results = resultcache.New(resultcache.WithClock(cfg.now))
	}

	hist := history.New[Workspace](history.WithMaxSize(cfg.maxHist), history.WithClock(cfg.now))
	var initial Workspace
	if cfg.sink != nil {
		restored, err := persist.Restore(ctx, cfg.sink, cfg.workspace, hist)
		if err != nil {
			return nil, fmt.Errorf("restore workspace %s: %w", cfg.workspace, err)
		}
		if cur, ok := hist.Current(); ok {
			initial = cur.Next.clone()
		} else if entries := hist.Entries(); len(entries) > 0 {
			initial = entries[0].Previous.clone()
		}
		log.Info().
			Str("workspace", cfg.workspace).
			Bool("restored", restored).
			Int("entries", len(hist.Entries())).
			Msg("Workspace history loaded")
	}

	st := state.New(initial)
	st.Subscribe(history.NewRecorder(hist))
	if cfg.sink != nil {
		st.Subscribe(persist.NewPersister[Workspace](cfg.sink, cfg.workspace, hist))
	}

	return &Service{
		gen:       gen,
		publisher: cfg.publisher,
		results:   cfg.results,
		recent:    resultcache.New(resultcache.WithMaxAge(cfg.dupWindow), resultcache.WithMaxSize(500), resultcache.WithClock(cfg.now)),
		debouncer: debounce.New(),
		history:   hist,
		state:     st,
		dupWindow: cfg.dupWindow,
		maxDim:    cfg.maxDim,
	}, nil
}

// Generate validates req, answers from the cache when possible and otherwise
// calls the image model, optionally debounced by req.DebounceKey.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	requestID := uuid.NewString()
	rec := metrics.New(metrics.Namespace).
		Dimension("Operation", string(req.Operation)).
		Property("requestId", requestID)
	defer rec.Flush()

	d, err := req.validate()
	if err != nil {
		return nil, err
	}
	key := d.cacheKey()

	if entry, ok := s.results.Lookup(key); ok {
		rec.Count(metrics.CacheHit)
		insertedAt := entry.InsertedAt
		return &GenerateResponse{
			RequestID: requestID,
			Images:    []string{entry.Value},
			Model:     entry.Meta.Model,
			CacheKey:  key,
			Cached:    true,
			CachedAt:  &insertedAt,
		}, nil
	}
	rec.Count(metrics.CacheMiss)

	if err := d.decodeImages(s.maxDim); err != nil {
		return nil, err
	}

	if s.recent.HasRecentRequest(key, s.dupWindow) {
		rec.Count(metrics.DuplicateRequest)
		log.Debug().Str("key", key).Msg("Duplicate generation rejected")
		return nil, ErrDuplicateRequest
	}
	s.recent.Set(key, requestID, resultcache.Metadata{Model: d.model})

	run := func(ctx context.Context) (*GenerateResponse, error) {
		return s.run(ctx, d, key, requestID)
	}

	var resp *GenerateResponse
	if req.DebounceKey != "" {
		delay := debounce.DefaultDelay
		if req.DebounceMs != nil {
			delay = debounce.ResolveDelay(*req.DebounceMs)
		}
		resp, err = debounce.Debounce(ctx, s.debouncer, req.DebounceKey, delay, run)
	} else {
		resp, err = run(ctx)
	}

	if err != nil {
		switch {
		case debounce.IsCancellation(err):
			rec.Count(metrics.DebounceSuperseded)
			s.recent.Delete(key)
		case errors.As(err, new(*inference.ProviderError)):
			rec.Count(metrics.ProviderError)
		}
		return nil, err
	}
	rec.Duration(metrics.GenerateLatencyMs, time.Since(start))
	return resp, nil
}

func (s *Service) run(ctx context.Context, d *decoded, key, requestID string) (*GenerateResponse, error) {
	var photoMeta map[string]any
	if md, err := imageio.ExtractMetadataBytes(d.original); err == nil {
		photoMeta = md.Fields()
	} else {
		log.Debug().Err(err).Msg("No EXIF metadata in source image")
	}

	res, err := s.gen.Generate(ctx, inference.Request{
		Operation:  d.req.Operation,
		Model:      d.model,
		Prompt:     d.req.Prompt,
		Image:      d.source,
		Mask:       d.mask,
		References: d.refs,
		Params:     d.req.Params,
	})
	if err != nil {
		return nil, err
	}
	// A superseded call may still get an answer from a generator that
	// ignores its context. Its result must not reach the workspace.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images := make([]string, 0, len(res.Images))
	for _, img := range res.Images {
		ref, err := s.publish(ctx, img)
		if err != nil {
			return nil, err
		}
		images = append(images, ref)
	}
	if len(images) == 0 {
		return nil, inference.ErrNoImage
	}
	model := res.Model
	if model == "" {
		model = d.model
	}

	s.results.Set(key, images[0], resultcache.Metadata{
		Model:  model,
		Prompt: d.req.Prompt,
		Params: d.req.Params,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := Workspace{
		SourceImage: fingerprint(d.original),
		Operation:   string(d.req.Operation),
		Prompt:      d.req.Prompt,
		Model:       model,
		Params:      d.req.Params,
		LastResult:  key,
	}
	if d.req.Operation == inference.OpStyleTransfer {
		next.Style = d.req.Prompt
	}
	for _, ref := range d.refs {
		next.ReferenceImages = append(next.ReferenceImages, fingerprint(ref.Data))
	}
	next.PhotoMetadata = photoMeta

	s.state.UpdateWithMetadata(ActionGenerate,
		fmt.Sprintf("%s with %s", d.req.Operation, model),
		map[string]any{"requestId": requestID, "cacheKey": key},
		func(Workspace) Workspace { return next.clone() })

	return &GenerateResponse{
		RequestID: requestID,
		Images:    images,
		Text:      res.Text,
		Model:     model,
		CacheKey:  key,
		Metadata:  photoMeta,
	}, nil
}

func (s *Service) publish(ctx context.Context, img inference.Image) (string, error) {
	if s.publisher == nil {
		return imageio.EncodeDataURI(img.MIMEType, img.Data), nil
	}
	url, err := s.publisher.Publish(ctx, "results", img.Data, img.MIMEType)
	if err != nil {
		return "", fmt.Errorf("publish result: %w", err)
	}
	return url, nil
}

// CancelPending drops a pending debounced generation.
func (s *Service) CancelPending(debounceKey string) {
	s.debouncer.Cancel(debounceKey)
}

// Workspace returns the current workspace.
func (s *Service) Workspace() Workspace {
	return s.state.Get().clone()
}

// ResetWorkspace clears the workspace as a recorded, undoable change.
func (s *Service) ResetWorkspace() {
	s.state.Update(ActionReset, "reset workspace", func(Workspace) Workspace { return Workspace{} })
}

// UndoWorkspace restores the state before the current history entry.
func (s *Service) UndoWorkspace() (Workspace, bool) {
	ok := history.UndoInto(s.history, s.state)
	return s.Workspace(), ok
}

// RedoWorkspace re-applies the next history entry.
func (s *Service) RedoWorkspace() (Workspace, bool) {
	ok := history.RedoInto(s.history, s.state)
	return s.Workspace(), ok
}

// HistoryStats summarises the workspace history.
func (s *Service) HistoryStats(topN int) history.Stats {
	return s.history.Stats(topN)
}

// HistoryEntries returns the recorded workspace changes.
func (s *Service) HistoryEntries() []history.Entry[Workspace] {
	return s.history.Entries()
}

// HistoryExport returns the history as a JSON document.
func (s *Service) HistoryExport() ([]byte, error) {
	return s.history.Export()
}

// CacheStats reports the result cache.
func (s *Service) CacheStats() resultcache.Stats {
	return s.results.Stats()
}

// ClearCache empties the result cache.
func (s *Service) ClearCache() {
	s.results.Clear()
	log.Info().Msg("Result cache cleared")
}
