package middlewares

import "context"

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxBearerKey    ctxKey = "bearer"
)

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID retorna "" si WithRequestID no corrió.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

// Bearer es el access token (y openid) extraído por WithBearer.
type Bearer struct {
	AccessToken string
	OpenID      string
}

func setBearer(ctx context.Context, b Bearer) context.Context {
	return context.WithValue(ctx, ctxBearerKey, b)
}

// GetBearer retorna el bearer extraído; ok=false si WithBearer no corrió.
func GetBearer(ctx context.Context) (Bearer, bool) {
	b, ok := ctx.Value(ctxBearerKey).(Bearer)
	return b, ok
}
