package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type staticEmbedder struct{}

func (staticEmbedder) IsAvailable(context.Context) bool { return true }

func (staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0}, nil
}

func (staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0}
	}
	return out, nil
}

func (staticEmbedder) Model() string  { return "static" }
func (staticEmbedder) Dimension() int { return 1 }

func TestSpawnRegenerationBoundsParallelism(t *testing.T) {
	s := NewService(nil, staticEmbedder{}, "static")

	var mu sync.Mutex
	current, peak, runs := 0, 0, 0
	s.regenerate = func(ctx context.Context, entityID, eventID string) error {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		runs++
		mu.Unlock()
		return nil
	}

	for i := 0; i < 16; i++ {
		s.SpawnRegeneration(fmt.Sprintf("character:c%d", i), "")
	}
	s.Wait()

	if runs != 16 {
		t.Errorf("ran %d regenerations, want 16", runs)
	}
	if peak > backfillParallelism {
		t.Errorf("peak parallelism %d exceeds bound %d", peak, backfillParallelism)
	}
}

func TestSpawnRegenerationDebouncesRepeats(t *testing.T) {
	s := NewService(nil, staticEmbedder{}, "static")

	gate := make(chan struct{})
	var mu sync.Mutex
	runs := 0
	s.regenerate = func(ctx context.Context, entityID, eventID string) error {
		<-gate
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	}

	for i := 0; i < 5; i++ {
		s.SpawnRegeneration("character:kaela", "")
	}
	close(gate)
	s.Wait()

	if runs != 1 {
		t.Errorf("ran %d regenerations for one entity, want 1", runs)
	}
}

func TestSpawnRegenerationNoEmbedderIsNoop(t *testing.T) {
	s := NewService(nil, nil, "")
	s.SpawnRegeneration("character:kaela", "")
	s.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inFlight) != 0 {
		t.Errorf("in-flight set should stay empty, has %d entries", len(s.inFlight))
	}
}
