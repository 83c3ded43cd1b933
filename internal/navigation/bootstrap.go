package navigation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Bootstrap binds one engine to every mount point present in the page, seeded
// with each mount's own declared chain and document, and starts them all.
// Mounts whose declaration is malformed are skipped; their errors are joined
// into the returned error while the others still run. Use Page.Wait to block
// until the whole disclosure tree has settled.
func Bootstrap(ctx context.Context, p *Page) ([]*Engine, error) {
	var (
		engines []*Engine
		errs    []error
	)

	p.mu.Lock()
	for i, mount := range MountPoints(p.root) {
		declared, err := ParseMount(mount)
		if err != nil {
			errs = append(errs, fmt.Errorf("mount point %d: %w", i, err))
			continue
		}
		e, err := newEngineLocked(p, mount, declared.OriginalParents, declared.OriginalDocument)
		if err != nil {
			errs = append(errs, fmt.Errorf("mount point %d: %w", i, err))
			continue
		}
		engines = append(engines, e)
	}
	p.mu.Unlock()

	for _, e := range engines {
		p.start(ctx, e)
	}
	p.logger.Info("Bootstrapped context navigation",
		zap.Int("engines", len(engines)),
		zap.Int("rejected", len(errs)))
	return engines, errors.Join(errs...)
}

// Summary counts settled engines by state.
func Summary(engines []*Engine) map[State]int {
	out := make(map[State]int)
	for _, e := range engines {
		out[e.State()]++
	}
	return out
}
