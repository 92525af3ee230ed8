package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the Engine is reachable and model is available.
// Backends that can pull download a missing model with progress written to
// w; others fail. Backends that can warm load the model afterwards.
func EnsureReady(ctx context.Context, e Engine, model string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference backend is not reachable; check llm.provider and its base URL")
	}

	if e.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
	} else {
		p, ok := e.(Puller)
		if !ok {
			return fmt.Errorf("model %s is not served by the backend", model)
		}
		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := p.PullModel(ctx, model, func(pp PullProgress) {
			if pp.Total > 0 {
				pct := float64(pp.Completed) / float64(pp.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", pp.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", pp.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	if wm, ok := e.(Warmer); ok {
		if err := wm.Warm(ctx, model); err != nil {
			fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", model, err)
		} else {
			fmt.Fprintf(w, "model %s: warm\n", model)
		}
	}
	return nil
}
