package ensemble

import (
	"log/slog"
	"sync"
)

// Registry owns the live sub-model set and swaps in new coefficient bundles
// without stopping the pipeline. Readers take a snapshot of the slice; a
// reload builds the replacement models fully before the swap, so a failed
// load leaves the current set active.
type Registry struct {
	mu     sync.RWMutex
	path   string
	arts   *Artifacts
	models []SubModel
}

// NewRegistry loads the bundle at path, or the baked-in calibration when
// path is empty.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}

	arts := DefaultArtifacts()
	if path != "" {
		loaded, err := LoadArtifacts(path)
		if err != nil {
			return nil, err
		}
		arts = loaded
	}

	r.install(arts)
	return r, nil
}

// Reload re-reads the bundle from disk and swaps it in. With no configured
// path it reinstalls the baked-in calibration.
func (r *Registry) Reload() error {
	arts := DefaultArtifacts()
	if r.path != "" {
		loaded, err := LoadArtifacts(r.path)
		if err != nil {
			return err
		}
		arts = loaded
	}

	r.install(arts)
	slog.Info("model artifacts reloaded", "version", arts.Version)
	return nil
}

func (r *Registry) install(arts *Artifacts) {
	models := arts.Build()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.arts = arts
	r.models = models
}

// Models returns the current sub-model snapshot.
func (r *Registry) Models() []SubModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models
}

// Version returns the bundle version behind the live models.
func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.arts.Version
}
