// Package content rewrites outgoing payloads according to a profile's settings.
package content

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

// Payload is a decoded JSON object.
type Payload = map[string]interface{}

// Transformer mutates a private copy of the payload and describes what it did.
type Transformer interface {
	Transform(p *profile.OptimizationProfile, payload Payload) ([]string, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(p *profile.OptimizationProfile, payload Payload) ([]string, error)

func (f TransformerFunc) Transform(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
	return f(p, payload)
}

// Result is the outcome of one optimization. On failure Payload is the
// original input and Err carries the cause.
type Result struct {
	Payload       Payload  `json:"payload"`
	Optimizations []string `json:"optimizations"`
	Err           error    `json:"-"`
}

// Optimizer dispatches by content type and never blocks delivery.
type Optimizer struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
	fallback     Transformer
	logger       *zap.Logger
}

// NewOptimizer returns an optimizer with the built-in transformers.
func NewOptimizer(logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Optimizer{
		transformers: make(map[string]Transformer),
		fallback:     TransformerFunc(transformGeneric),
		logger:       logger,
	}
	o.Register(TransformerFunc(transformText), "blog", "text", "article")
	o.Register(TransformerFunc(transformImage), "image")
	o.Register(TransformerFunc(transformVideo), "video")
	o.Register(TransformerFunc(transformList), "list", "pagination")
	return o
}

// Register binds t to one or more content types, replacing any previous binding.
func (o *Optimizer) Register(t Transformer, contentTypes ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ct := range contentTypes {
		o.transformers[normalize(ct)] = t
	}
}

func normalize(contentType string) string {
	return strings.ToLower(strings.TrimSpace(contentType))
}

func (o *Optimizer) transformerFor(contentType string) Transformer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if t, ok := o.transformers[normalize(contentType)]; ok {
		return t
	}
	return o.fallback
}

// Optimize returns the optimized payload. p is only read. Any transformer
// error or panic yields the original payload unchanged.
func (o *Optimizer) Optimize(p *profile.OptimizationProfile, contentType string, payload Payload) Result {
	if payload == nil {
		return Result{Payload: payload, Optimizations: []string{}}
	}
	if p == nil {
		return Result{Payload: payload, Optimizations: []string{}}
	}

	working := clonePayload(payload)
	applied, err := o.run(o.transformerFor(contentType), p, working)
	if err != nil {
		o.logger.Warn("Content optimization failed, serving original payload",
			zap.String("subject_id", p.SubjectID),
			zap.String("content_type", contentType),
			zap.Error(err))
		return Result{
			Payload:       payload,
			Optimizations: []string{},
			Err:           engerrors.ContentOptimization(contentType, err),
		}
	}
	if applied == nil {
		applied = []string{}
	}
	return Result{Payload: working, Optimizations: applied}
}

func (o *Optimizer) run(t Transformer, p *profile.OptimizationProfile, payload Payload) (applied []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			applied = nil
			err = fmt.Errorf("transformer panic: %v", r)
		}
	}()
	return t.Transform(p, payload)
}

func clonePayload(in Payload) Payload {
	out := make(Payload, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return clonePayload(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
