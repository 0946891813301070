package middleware

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	clientIPKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetClientIP returns the address recorded by ClientIP, or "".
func GetClientIP(ctx context.Context) string {
	return stringValue(ctx, clientIPKey)
}
