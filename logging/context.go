package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugKeyType int

const debugKeyID = debugKeyType(iota)

// EnableDebugMode returns a context under which CDebugw logs regardless of the logger's level.
// Those entries carry key as "debug_key", so the measurements of one run can be picked out of a
// shared log. An empty key generates a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugKeyID, key)
}

// IsDebugMode returns whether ctx has debug logging enabled.
func IsDebugMode(ctx context.Context) bool {
	return debugKey(ctx) != ""
}

func debugKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(debugKeyID).(string)
	return key
}
