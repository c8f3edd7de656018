package gateway

import "context"

type verdictKey struct{}

// NewContext returns a copy of ctx carrying an allow verdict
func NewContext(ctx context.Context, v *Verdict) context.Context {
	return context.WithValue(ctx, verdictKey{}, v)
}

// FromContext returns the verdict stored by NewContext, or nil
func FromContext(ctx context.Context) *Verdict {
	v, _ := ctx.Value(verdictKey{}).(*Verdict)
	return v
}
