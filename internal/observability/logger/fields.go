package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - OAUTH
// =================================================================================

// ClientID crea un campo para el ID del cliente OAuth.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// UserID crea un campo para el ID del resource owner.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// OpenID es el identificador opaco del subject por cliente.
func OpenID(v string) zap.Field { return zap.String("openid", v) }

func GrantType(v string) zap.Field { return zap.String("grant_type", v) }

func ResponseType(v string) zap.Field { return zap.String("response_type", v) }

func Scope(v string) zap.Field { return zap.String("scope", v) }

// Flow identifica el flujo del dispatcher (client_credentials, authorize, ...).
func Flow(v string) zap.Field { return zap.String("flow", v) }

// ErrorCode es el código de error OAuth devuelto al cliente.
func ErrorCode(v string) zap.Field { return zap.String("error_code", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer crea un campo para la capa (controller, service, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Driver(v string) zap.Field { return zap.String("driver", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
