package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// AccessTokenBytes es la entropía de access y refresh tokens.
	AccessTokenBytes = 32
	// CodeBytes es la entropía de los authorization codes.
	CodeBytes = 24
	// OpenIDBytes es la entropía del identificador opaco por client+user.
	OpenIDBytes = 16
	// SecretBytes es la entropía de un client_secret generado.
	SecretBytes = 32
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("tokens: invalid size %d", nBytes)
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateOpenID genera un openid hexadecimal (estable por client+user una vez guardado).
func GenerateOpenID() (string, error) {
	b := make([]byte, OpenIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Pair es un par access/refresh crudo junto con sus hashes.
type Pair struct {
	Access      string
	AccessHash  string
	Refresh     string
	RefreshHash string
}

// GeneratePair genera un access token y un refresh token nuevos.
func GeneratePair() (Pair, error) {
	access, err := GenerateOpaqueToken(AccessTokenBytes)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := GenerateOpaqueToken(AccessTokenBytes)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:      access,
		AccessHash:  SHA256Base64URL(access),
		Refresh:     refresh,
		RefreshHash: SHA256Base64URL(refresh),
	}, nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding (para guardar en DB).
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Equal compara dos secretos en tiempo constante.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
