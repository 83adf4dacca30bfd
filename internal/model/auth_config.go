package model

// AuthConfig is the singleton `config` row (id=1) controlling the global
// authentication toggle and which email domains may self-register. An
// empty AllowedDomains slice means registration is unrestricted. The row
// is only ever mutated by a superuser and every write is followed by a
// cache invalidation (see service.AuthConfigCache).
type AuthConfig struct {
	EnableAuth     bool
	AllowedDomains []string
}

// DomainAllowed reports whether an email's domain suffix is permitted for
// self-registration. Matching is exact and case-insensitive on the part
// after the last '@'; callers pass the already-lowered domain.
func (c AuthConfig) DomainAllowed(domain string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	for _, d := range c.AllowedDomains {
		if d == domain {
			return true
		}
	}
	return false
}
