package relay

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/blueprintforge/blueprintd/internal/analytics"
	"github.com/blueprintforge/blueprintd/internal/blueprint"
	"github.com/blueprintforge/blueprintd/internal/metrics"
	"github.com/blueprintforge/blueprintd/internal/upstream"
)

const (
	// DefaultFlushSize is the coalescing threshold in characters. Together
	// with DefaultFlushInterval it bounds write-syscall overhead on one side
	// and perceived latency on the other; tune the numbers, keep both.
	DefaultFlushSize = 3
	// DefaultFlushInterval is the longest a buffered fragment waits before
	// being pushed to the client.
	DefaultFlushInterval = 30 * time.Millisecond

	persistTimeout = 5 * time.Second
)

// Options tunes the coalescing buffer.
type Options struct {
	FlushSize     int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.FlushSize <= 0 {
		o.FlushSize = DefaultFlushSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	return o
}

// Pipeline relays one upstream fragment stream to a frame writer while
// persisting the accumulating blueprint. Each Run is an independent
// instance; nothing is shared across invocations except the store and sink.
type Pipeline struct {
	store  blueprint.Store
	sink   analytics.Sink
	logger *log.Logger
	opts   Options
}

// New constructs a pipeline. sink may be nil; logger defaults to the
// standard logger.
func New(store blueprint.Store, sink analytics.Sink, logger *log.Logger, opts Options) *Pipeline {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		store:  store,
		sink:   sink,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// RunParams carries one generation request through the pipeline.
type RunParams struct {
	UserID   string
	Prompt   string
	Platform string
	System   string // system instructions from the prompt builder
	APIKey   string // per-request credential override
	Model    string
	Client   upstream.Client
}

// Result reports how a run ended. BlueprintID is empty only when record
// allocation failed before streaming.
type Result struct {
	BlueprintID string
	Content     string
	Status      blueprint.Status
	Err         error
}

// Run drives a generation from record allocation to a terminal frame. The
// writer always receives a terminal frame unless the client itself is gone.
func (p *Pipeline) Run(ctx context.Context, w FrameWriter, params RunParams) Result {
	start := time.Now()
	p.sink.Track("blueprint_generation_started", params.UserID, map[string]any{
		"platform":     params.Platform,
		"promptLength": len(params.Prompt),
	})
	metrics.GenerationsStarted.WithLabelValues(params.Platform).Inc()

	rec, err := p.store.Create(ctx, blueprint.NewRecordParams{
		UserID:   params.UserID,
		Prompt:   params.Prompt,
		Platform: params.Platform,
	})
	if err != nil {
		p.logger.Printf("relay.create_record failed platform=%s err=%v", params.Platform, err)
		p.writeFrame(w, NewErrorFrame("", "blueprint store unavailable"))
		p.trackFailure(params, "", err, start)
		return Result{Status: blueprint.StatusError, Err: err}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := params.Client.StreamGenerate(streamCtx, upstream.Request{
		System: params.System,
		Prompt: params.Prompt,
		APIKey: params.APIKey,
		Model:  params.Model,
	})
	if err != nil {
		return p.fail(w, params, rec.ID, "", err, start)
	}

	var full strings.Builder
	var pending strings.Builder
	timer := time.NewTimer(p.opts.FlushInterval)
	defer timer.Stop()

	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		chunk := pending.String()
		pending.Reset()
		return w.WriteFrame(NewChunkFrame(rec.ID, chunk, full.String()))
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Clean upstream termination: flush the tail, then complete.
				if err := flush(); err != nil {
					return p.disconnect(params, rec.ID, full.String(), start)
				}
				return p.complete(w, params, rec.ID, full.String(), start)
			}
			if ev.Err != nil {
				cancel()
				drain(events)
				if ferr := flush(); ferr != nil {
					return p.disconnect(params, rec.ID, full.String(), start)
				}
				return p.fail(w, params, rec.ID, full.String(), ev.Err, start)
			}
			if ev.Fragment == "" {
				continue
			}
			full.WriteString(ev.Fragment)
			pending.WriteString(ev.Fragment)
			if pending.Len() >= p.opts.FlushSize {
				if err := flush(); err != nil {
					cancel()
					drain(events)
					return p.disconnect(params, rec.ID, full.String(), start)
				}
				resetTimer(timer, p.opts.FlushInterval)
			}
		case <-timer.C:
			if err := flush(); err != nil {
				cancel()
				drain(events)
				return p.disconnect(params, rec.ID, full.String(), start)
			}
			timer.Reset(p.opts.FlushInterval)
		}
	}
}

func (p *Pipeline) complete(w FrameWriter, params RunParams, id, content string, start time.Time) Result {
	if err := p.persist(id, content, blueprint.StatusComplete); err != nil {
		// Bookkeeping failed; the client still gets its terminal frame.
		p.logger.Printf("relay.persist_complete failed id=%s err=%v", id, err)
	}
	p.writeFrame(w, NewCompleteFrame(id, content))

	dur := time.Since(start)
	p.sink.Track("blueprint_generation_completed", params.UserID, map[string]any{
		"platform":      params.Platform,
		"promptLength":  len(params.Prompt),
		"contentLength": len(content),
		"durationMs":    dur.Milliseconds(),
	})
	metrics.GenerationsCompleted.WithLabelValues(params.Platform).Inc()
	metrics.GenerationDuration.WithLabelValues(params.Platform).Observe(dur.Seconds())
	metrics.StreamedBytes.WithLabelValues(params.Platform).Add(float64(len(content)))
	p.logger.Printf("relay.complete id=%s platform=%s content_len=%d total_ms=%d", id, params.Platform, len(content), dur.Milliseconds())
	return Result{BlueprintID: id, Content: content, Status: blueprint.StatusComplete}
}

func (p *Pipeline) fail(w FrameWriter, params RunParams, id, content string, cause error, start time.Time) Result {
	if id != "" {
		if err := p.persist(id, content, blueprint.StatusError); err != nil {
			p.logger.Printf("relay.persist_error failed id=%s err=%v", id, err)
		}
	}
	p.writeFrame(w, NewErrorFrame(id, cause.Error()))
	p.trackFailure(params, id, cause, start)
	return Result{BlueprintID: id, Content: content, Status: blueprint.StatusError, Err: cause}
}

// disconnect handles a downstream write failure: the client is gone, so no
// further frames are attempted. The partial record is marked error so it
// never sits in generating forever.
func (p *Pipeline) disconnect(params RunParams, id, content string, start time.Time) Result {
	cause := upstream.Errorf(upstream.KindUpstreamUnavailable, "client disconnected")
	if err := p.persist(id, content, blueprint.StatusError); err != nil {
		p.logger.Printf("relay.persist_disconnect failed id=%s err=%v", id, err)
	}
	p.trackFailure(params, id, cause, start)
	p.logger.Printf("relay.disconnect id=%s platform=%s content_len=%d", id, params.Platform, len(content))
	return Result{BlueprintID: id, Content: content, Status: blueprint.StatusError, Err: cause}
}

// persist runs terminal updates on a fresh context: the request context is
// already cancelled when the client disconnected.
func (p *Pipeline) persist(id, content string, status blueprint.Status) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	_, err := p.store.UpdateContent(ctx, id, content, status)
	return err
}

func (p *Pipeline) trackFailure(params RunParams, id string, cause error, start time.Time) {
	dur := time.Since(start)
	kind := string(upstream.KindOf(cause))
	p.sink.Track("blueprint_generation_failed", params.UserID, map[string]any{
		"platform":     params.Platform,
		"promptLength": len(params.Prompt),
		"error":        cause.Error(),
		"durationMs":   dur.Milliseconds(),
	})
	metrics.GenerationsFailed.WithLabelValues(params.Platform, kind).Inc()
	metrics.GenerationDuration.WithLabelValues(params.Platform).Observe(dur.Seconds())
	if id != "" {
		p.logger.Printf("relay.error id=%s platform=%s kind=%s total_ms=%d err=%v", id, params.Platform, kind, dur.Milliseconds(), cause)
	}
}

func (p *Pipeline) writeFrame(w FrameWriter, f Frame) {
	if err := w.WriteFrame(f); err != nil {
		p.logger.Printf("relay.write_frame type=%s failed: %v", f.Type, err)
	}
}

// drain unblocks the producer goroutine after cancellation.
func drain(events <-chan upstream.Event) {
	go func() {
		for range events {
		}
	}()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
