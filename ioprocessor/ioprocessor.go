// Package ioprocessor implements the pluggable Event I/O Processor Registry
// from spec.md §4.5: a map of type URI to Processor, dispatch-by-target
// fallback, and the two built-in processors (HTTP, SCXML/internal).
//
// Adapted from the teacher's internal/production/eventpublisher.go
// EventPublisher interface shape (Publish(ctx, event, metadata) error),
// generalized from "fire and forget to one channel" into "route to one of
// several named transports, report structured success/failure".
package ioprocessor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OutgoingEvent is the wire-shape of an event as seen by a Processor: the
// interpreter's internal scxmlgo.Event, flattened to avoid an import cycle
// (this package must not import the root package, which imports this one
// for the Registry/Processor contracts it dispatches through).
type OutgoingEvent struct {
	Name       string         `json:"event"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data,omitempty"`
	SendID     string         `json:"sendid,omitempty"`
	Origin     string         `json:"origin,omitempty"`
	OriginType string         `json:"origintype,omitempty"`
	InvokeID   string         `json:"invokeid,omitempty"`
}

// Result is what a Processor reports back to the caller (spec.md §4.5
// "send(event, target, config) -> {success, error?, sendid?, events?}").
type Result struct {
	Success bool
	Error   error
	SendID  string
	Events  []OutgoingEvent // events the processor itself wants to raise (e.g. a synchronous reply)
}

// Processor is a pluggable transport for <send>.
type Processor interface {
	// Send dispatches event to target under config (processor-specific,
	// e.g. method/headers/timeout for HTTP).
	Send(ctx context.Context, event OutgoingEvent, target string, config map[string]any) Result
	// CanHandle reports whether this processor recognizes target, used for
	// type-less dispatch fallback. A processor that should never be picked
	// by target returns false.
	CanHandle(target string) bool
	// Type returns the processor's type URI, used as the registry key.
	Type() string
}

// Registry maintains type -> Processor and a designated default, per
// spec.md §4.5 dispatch rule: explicit type picks that processor (miss is
// an error); otherwise the first processor whose CanHandle(target) is
// true; otherwise the default.
type Registry struct {
	byType  map[string]Processor
	ordered []Processor // preserves registration order for CanHandle scan
	def     Processor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Processor)}
}

// Register adds p under p.Type(). The first registered processor becomes
// the default unless SetDefault is called explicitly.
func (r *Registry) Register(p Processor) {
	r.byType[p.Type()] = p
	r.ordered = append(r.ordered, p)
	if r.def == nil {
		r.def = p
	}
}

// SetDefault designates p (which must already be registered) as the
// fallback processor.
func (r *Registry) SetDefault(p Processor) { r.def = p }

// ErrNoProcessor is returned when an explicit type is requested but not
// registered.
var ErrNoProcessor = errors.New("ioprocessor: no processor registered for type")

// Resolve picks a processor per the dispatch rule above.
func (r *Registry) Resolve(typ, target string) (Processor, error) {
	if typ != "" {
		p, ok := r.byType[typ]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoProcessor, typ)
		}
		return p, nil
	}
	for _, p := range r.ordered {
		if p.CanHandle(target) {
			return p, nil
		}
	}
	if r.def != nil {
		return r.def, nil
	}
	return nil, fmt.Errorf("%w: (no default configured)", ErrNoProcessor)
}

// Dispatch resolves and sends in one call.
func (r *Registry) Dispatch(ctx context.Context, typ, target string, event OutgoingEvent, config map[string]any) Result {
	p, err := r.Resolve(typ, target)
	if err != nil {
		return Result{Success: false, Error: err}
	}
	return p.Send(ctx, event, target, config)
}

// HTTPProcessor posts events as JSON to http(s):// targets, rate-limited
// to avoid an outbound send storm overwhelming a collaborator service
// (golang.org/x/time/rate, grounded in agentflare-ai-agentml-go's direct
// dependency on golang.org/x/time).
type HTTPProcessor struct {
	Client      *http.Client
	Method      string
	Headers     map[string]string
	Timeout     time.Duration
	limiter     *rate.Limiter
}

// NewHTTPProcessor creates an HTTPProcessor. ratePerSec <= 0 disables
// limiting.
func NewHTTPProcessor(ratePerSec float64, burst int) *HTTPProcessor {
	p := &HTTPProcessor{
		Client:  http.DefaultClient,
		Method:  http.MethodPost,
		Timeout: 10 * time.Second,
	}
	if ratePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return p
}

func (p *HTTPProcessor) Type() string { return "http" }

func (p *HTTPProcessor) CanHandle(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func (p *HTTPProcessor) Send(ctx context.Context, event OutgoingEvent, target string, config map[string]any) Result {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Result{Success: false, Error: fmt.Errorf("ioprocessor(http): rate limit wait: %w", err)}
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("ioprocessor(http): marshal: %w", err)}
	}

	method := p.Method
	if m, ok := config["method"].(string); ok && m != "" {
		method = m
	}
	timeout := p.Timeout
	if d, ok := config["timeout"].(time.Duration); ok && d > 0 {
		timeout = d
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("ioprocessor(http): new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if hdrs, ok := config["headers"].(map[string]string); ok {
		for k, v := range hdrs {
			req.Header.Set(k, v)
		}
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("ioprocessor(http): do: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{Success: false, Error: fmt.Errorf("ioprocessor(http): status %d", resp.StatusCode), SendID: event.SendID}
	}
	return Result{Success: true, SendID: event.SendID}
}

// SessionSink receives events addressed to "scxml:<sessionId>" or
// "#_internal" (spec.md §4.5 "SCXML/internal").
type SessionSink interface {
	Deliver(ctx context.Context, event OutgoingEvent) error
}

// InternalProcessor routes events to registered session sinks by session
// ID, or to the owning session itself for "#_internal".
type InternalProcessor struct {
	SelfSessionID string
	Self          SessionSink
	sessions      map[string]SessionSink
}

// NewInternalProcessor creates an InternalProcessor for the given owning
// session.
func NewInternalProcessor(selfSessionID string, self SessionSink) *InternalProcessor {
	return &InternalProcessor{SelfSessionID: selfSessionID, Self: self, sessions: make(map[string]SessionSink)}
}

// RegisterSession makes sink reachable as "scxml:<sessionID>".
func (p *InternalProcessor) RegisterSession(sessionID string, sink SessionSink) {
	p.sessions[sessionID] = sink
}

func (p *InternalProcessor) Type() string { return "scxml" }

func (p *InternalProcessor) CanHandle(target string) bool {
	return target == "#_internal" || strings.HasPrefix(target, "scxml:")
}

func (p *InternalProcessor) Send(ctx context.Context, event OutgoingEvent, target string, _ map[string]any) Result {
	if target == "#_internal" {
		if p.Self == nil {
			return Result{Success: false, Error: fmt.Errorf("ioprocessor(scxml): no self sink configured")}
		}
		if err := p.Self.Deliver(ctx, event); err != nil {
			return Result{Success: false, Error: err}
		}
		return Result{Success: true, SendID: event.SendID}
	}
	sid := strings.TrimPrefix(target, "scxml:")
	sink, ok := p.sessions[sid]
	if !ok {
		return Result{Success: false, Error: fmt.Errorf("ioprocessor(scxml): unknown session %q", sid)}
	}
	if err := sink.Deliver(ctx, event); err != nil {
		return Result{Success: false, Error: err}
	}
	return Result{Success: true, SendID: event.SendID}
}
