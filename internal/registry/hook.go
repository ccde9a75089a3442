package registry

import (
	"strings"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/host"
)

// Hook returns the OpenHook that links every spawned context with its name and
// the origin of its url. Failures are logged, never surfaced to the host.
func (r *Registry) Hook() host.OpenHook {
	return func(w bus.Window, url, name string) {
		if w == nil {
			return
		}
		d := Details{Window: w, Name: name}
		if strings.TrimSpace(url) != "" {
			domain, err := host.DomainFromURL(url)
			if err != nil {
				r.logger.Warn().Err(err).Str("url", url).Msg("registry.Hook unparseable url")
			} else {
				d.Domain = domain
			}
		}
		if _, err := r.LinkWindow(d); err != nil {
			r.logger.Warn().Err(err).Str("name", name).Msg("registry.Hook link failed")
		}
	}
}

// Install registers the auto-link hook on opener and returns its cancel func.
func (r *Registry) Install(opener host.Opener) func() {
	return opener.OnOpen(r.Hook())
}
