package imagefetch

import "github.com/Skryldev/imagefetch/core"

// Inner exposes the underlying core.Pipeline for advanced use (e.g., direct
// registry access in tests).  Prefer the high-level API for normal usage.
func (p *Pipeline) Inner() *core.Pipeline { return p.inner }
