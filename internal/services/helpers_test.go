package services

import (
	"context"
	"sync"

	"github.com/Corphon/SceneForge/internal/library"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/storage"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []models.SynthesisRequest
	respond func(req models.SynthesisRequest) (*models.GenerationResult, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req models.SynthesisRequest) (*models.GenerationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond == nil {
		return &models.GenerationResult{Text: "generated: " + req.Concept}, nil
	}
	return respond(req)
}

func (f *fakeGenerator) lastCall() models.SynthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func textResponse(text string) func(models.SynthesisRequest) (*models.GenerationResult, error) {
	return func(models.SynthesisRequest) (*models.GenerationResult, error) {
		return &models.GenerationResult{Text: text}, nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	gen      *fakeGenerator
	libs     *library.Libraries
	limiter  *UsageLimiter
	workflow *Workflow
}

func newFixture() *fixture {
	gen := &fakeGenerator{}
	libs := library.Open(storage.NewMemoryStorage())
	limiter := NewUsageLimiter()
	return &fixture{
		gen:      gen,
		libs:     libs,
		limiter:  limiter,
		workflow: NewWorkflow(NewSynthesizer(gen), libs, limiter),
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
