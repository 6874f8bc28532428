package util

import "strings"

// MaskEmail deja visible la primera letra del usuario y del dominio.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		return MaskIdentifier(s)
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts) > 0 && len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}

// MaskIdentifier enmascara un username para logs: primera y última letra.
func MaskIdentifier(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.IndexByte(s, '@') > 0:
		return MaskEmail(s)
	case len(s) <= 3:
		return "***"
	}
	return s[:1] + "…" + s[len(s)-1:]
}
