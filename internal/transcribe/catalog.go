package transcribe

import (
	"errors"
	"fmt"
)

// BackendInfo describes one registered backend as it would be built from
// the current settings.
type BackendInfo struct {
	Name          string
	Configured    bool
	Authoritative bool
	Models        []ModelInfo
	Error         string
}

// Describe builds each named backend with settings and reports whether it
// is usable. With no names every registered backend is described. Unknown
// names are an error; a backend missing credentials is reported, not
// returned as an error.
func Describe(reg *Registry[Backend], settings Settings, names ...string) ([]BackendInfo, error) {
	if len(names) == 0 {
		names = reg.List()
	}
	for _, name := range names {
		if !reg.Has(name) {
			return nil, fmt.Errorf("unknown backend %q (registered: %v)", name, reg.List())
		}
	}

	out := make([]BackendInfo, 0, len(names))
	for _, name := range names {
		info := BackendInfo{Name: name}
		b, err := reg.Create(name, settings)
		switch {
		case errors.Is(err, ErrMissingCredentials):
			info.Error = "credentials not configured"
		case err != nil:
			info.Error = err.Error()
		default:
			info.Configured = true
			info.Authoritative = b.Authoritative()
			if lister, ok := b.(ModelLister); ok {
				info.Models = lister.Models()
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// DefaultModel returns the model flagged as default, or the first one.
func (i BackendInfo) DefaultModel() string {
	for _, m := range i.Models {
		if m.IsDefault {
			return m.ID
		}
	}
	if len(i.Models) > 0 {
		return i.Models[0].ID
	}
	return ""
}
