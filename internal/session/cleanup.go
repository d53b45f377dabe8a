package session

import (
	"context"
	"fmt"

	"github.com/primebank/primebank-web/pkg/metrics"
)

// cleanupStep is one independent stage of a best-effort teardown.
type cleanupStep struct {
	name string
	run  func(ctx context.Context) error
}

// runBestEffort runs steps in order. A failing or panicking step is logged and
// counted; later steps still run. It returns the names of failed steps.
func runBestEffort(ctx context.Context, steps []cleanupStep) []string {
	var failed []string
	for _, st := range steps {
		if err := runStep(ctx, st); err != nil {
			log.Warnf("%s failed: %v", st.name, err)
			metrics.LogoutStepFailures.WithLabelValues(st.name).Inc()
			failed = append(failed, st.name)
		}
	}
	return failed
}

func runStep(ctx context.Context, st cleanupStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.run(ctx)
}
