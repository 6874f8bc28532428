// Package grant implementa la máquina de estados de los grant flows OAuth2.
//
// Cada flujo es una cadena fija de guards:
//
//	identidad del client → secret → grant/scope → estado de negocio → mutación
//
// El primer guard que falla decide el Problem (código + status). El orden no
// se reordena. El Dispatcher no conoce HTTP: recibe requests ya parseados y
// devuelve un Outcome que el Response Builder serializa.
//
// El error retornado junto al Outcome está reservado para fallas internas
// (store caído); los rechazos de protocolo viajan dentro del Outcome.
package grant

import (
	"context"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/oauth/binder"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	"github.com/dropDatabas3/snsoauth/internal/oauth/userinfo"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// Flujos (etiqueta de métricas y logs).
const (
	FlowClientCredentials = "client_credentials"
	FlowAuthorize         = "authorize"
	FlowAuthorizationCode = "authorization_code"
	FlowAccessToken       = "access_token" // grant_type no atendido por /sns/access_token
	FlowPassword          = "password"
	FlowRefresh           = "refresh_token"
	FlowResource          = "resource"
)

// Forgery emite y verifica tokens anti-forgery ligados a la sesión.
// Verify retorna (false, nil) para un token inválido; el error queda para
// fallas internas.
type Forgery interface {
	Issue(ctx context.Context, sessionID string) (string, error)
	Verify(ctx context.Context, sessionID, token string) (bool, error)
}

// Recorder recibe un evento por cada outcome decidido.
type Recorder interface {
	GrantOutcome(flow, result string)
}

// Config son los ajustes de política del Dispatcher.
type Config struct {
	ConsentPolicy         scope.Policy
	EnforceRedirectDomain bool
	// LoginURL recibe return_to=<request url> cuando no hay sesión.
	// Vacío => 401 login_required.
	LoginURL string
}

// Deps agrupa los colaboradores del Dispatcher.
type Deps struct {
	Binders  *binder.Binders
	Forgery  Forgery
	UserInfo userinfo.Adapter
	Recorder Recorder
	Config   Config
}

type Dispatcher struct {
	binders  *binder.Binders
	forgery  Forgery
	userinfo userinfo.Adapter
	recorder Recorder
	cfg      Config
}

func New(d Deps) *Dispatcher {
	if d.Config.ConsentPolicy == "" {
		d.Config.ConsentPolicy = scope.ScopeOrPrior
	}
	return &Dispatcher{
		binders:  d.Binders,
		forgery:  d.Forgery,
		userinfo: d.UserInfo,
		recorder: d.Recorder,
		cfg:      d.Config,
	}
}

// finish registra el outcome (métricas + log de debug) y lo devuelve.
func (d *Dispatcher) finish(ctx context.Context, flow string, start time.Time, out Outcome) (Outcome, error) {
	res := out.result()
	if d.recorder != nil {
		d.recorder.GrantOutcome(flow, res)
	}
	logger.From(ctx).Debug("grant outcome",
		logger.Flow(flow),
		logger.String("result", res),
		logger.Status(out.Status),
		logger.Duration(time.Since(start)),
	)
	return out, nil
}

// fail registra una falla interna. El Outcome devuelto es un 500 genérico.
func (d *Dispatcher) fail(ctx context.Context, flow string, err error) (Outcome, error) {
	if d.recorder != nil {
		d.recorder.GrantOutcome(flow, ErrServerError)
	}
	return Reject(ServerError()), err
}
