// Package audit registra eventos de seguridad del resource owner (login,
// logout) en un logger zap dedicado ("audit").
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// Eventos.
const (
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventLogout         = "logout"
)

// Log escribe un evento de auditoría. Hereda request_id del logger del contexto.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).Named("audit").Info(event, append(fields, zap.String("event", event))...)
}
