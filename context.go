package portalguard

import "context"

type clientIDContextKey struct{}
type clientIPContextKey struct{}

// WithClientID attaches the identifier of the browser session being guarded.
// It is copied into audit events so anomalies can be traced to one client.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

// WithClientIP attaches the caller's IP address to ctx for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(clientIDContextKey{}).(string)
	return id
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
