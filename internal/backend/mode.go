package backend

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects which backend(s) the Router uses for an invocation.
type Mode int

const (
	// ModeHybrid prefers native and falls back to legacy when native raises.
	ModeHybrid Mode = iota
	// ModeNative uses the native backend only.
	ModeNative
	// ModeLegacy uses the legacy backend only.
	ModeLegacy
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeHybrid:
		return "hybrid"
	case ModeNative:
		return "native"
	case ModeLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeHybrid, ModeNative, ModeLegacy:
		return true
	default:
		return false
	}
}

// ParseMode converts a case-insensitive mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hybrid":
		return ModeHybrid, nil
	case "native":
		return ModeNative, nil
	case "legacy":
		return ModeLegacy, nil
	default:
		return 0, fmt.Errorf("unknown backend mode %q (want native, legacy or hybrid)", s)
	}
}

type modeKey struct{}

// WithMode returns a context that forces mode for every Router invocation made
// with it. The router's global mode is left untouched.
func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, mode)
}

// ModeFromContext returns the override carried by ctx, if any.
func ModeFromContext(ctx context.Context) (Mode, bool) {
	mode, ok := ctx.Value(modeKey{}).(Mode)
	return mode, ok
}
