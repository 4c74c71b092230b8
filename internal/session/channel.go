package session

import "context"

// ctxChannelKey is the context.Context key carrying the inbound
// command's goog:channel tag into its processor, since
// bidiproto.Router's Handler signature was deliberately kept free of
// any BiDi-specific field (see internal/bidiproto/router_test.go) —
// this is the one place that threads it back in.
type ctxChannelKey struct{}

func withChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxChannelKey{}, channel)
}

// channelFrom returns the goog:channel tag of the command being
// processed under ctx, or "" if none was set.
func channelFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxChannelKey{}).(string)
	return v
}
