package keycloak

// User mirrors the provider's user representation as returned by the admin API.
// The provider owns these records; this service only reads them and creates
// base identities with a temporary credential.
type User struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
}

// role mirrors the admin API role representation; only the name is consumed.
type role struct {
	Name string `json:"name"`
}

// credential mirrors the admin API credential representation used for password resets.
type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}
