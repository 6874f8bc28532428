// Package repository define los contratos del Credential Store.
//
// El core OAuth (binders + dispatcher) solo conoce estas interfaces; las
// implementaciones viven en internal/store/{memory,pg,redis}.
//
//	┌─────────────────────────────────────────────────────┐
//	│      oauth/binder  ·  oauth/grant (dispatcher)      │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (CredentialStore)          │
//	│  Clients · Users · Authorizations · Codes · Tokens  │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	         ┌──────────────┼──────────────┐
//	         ▼              ▼              ▼
//	┌─────────────┐  ┌─────────────┐  ┌─────────────┐
//	│   memory    │  │     pg      │  │    redis    │
//	└─────────────┘  └─────────────┘  └─────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - Los tokens y codes se guardan hasheados (SHA-256 base64url); el valor
//     crudo solo existe en la respuesta de emisión.
//   - Consumo de codes y rotación de refresh tokens son transiciones atómicas
//     del store (compare-and-swap); el core nunca toma locks.
package repository
