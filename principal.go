package auth

// Principal is the immutable in-memory representation of the authenticated
// caller, rebuilt from a fresh profile fetch on every request that needs it.
type Principal struct {
	ID            string
	Email         string
	EmailVerified bool
	Confirmed     bool
}

// Active reports whether the principal may use the application. An account is
// active once the provider marks it confirmed.
func (p Principal) Active() bool {
	return p.Confirmed
}

// PrincipalFromProfile builds a Principal from provider attributes.
func PrincipalFromProfile(identifier string, profile Profile) Principal {
	id := profile.Sub
	if id == "" {
		id = identifier
	}

	email := profile.Email
	if email == "" {
		email = identifier
	}

	return Principal{
		ID:            id,
		Email:         email,
		EmailVerified: profile.EmailVerified,
		Confirmed:     profile.Confirmed,
	}
}
