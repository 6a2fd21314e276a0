package config

import (
	"time"

	"github.com/ecocollect/identity-service/internal/envconfig"
	"github.com/ecocollect/identity-service/internal/usersync"
)

type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string `validate:"required"`
	Auth         AuthConfig
	Keycloak     KeycloakConfig
	Sync         SyncConfig
	Firestore    FirestoreConfig
}

type AuthConfig struct {
	Mode     string `validate:"required"`
	JWKSURL  string
	Audience string
	Issuer   string
}

type KeycloakConfig struct {
	BaseURL       string `validate:"required"`
	Realm         string `validate:"required"`
	AdminRealm    string `validate:"required"`
	AdminClientID string `validate:"required"`
	AdminUsername string `validate:"required"`
	AdminPassword string `validate:"required"`
}

type SyncConfig struct {
	// StartupSync controls whether a full reconciliation pass runs at boot.
	StartupSync bool
	MaxAttempts int           `validate:"min=1"`
	Interval    time.Duration `validate:"min=1ms"`
}

type FirestoreConfig struct {
	EmulatorHost string
}

func Load() (Config, error) {
	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", "ecocollect-dev"),
		Auth: AuthConfig{
			Mode:     envconfig.Get("AUTH_MODE", "keycloak"),
			JWKSURL:  envconfig.Get("KEYCLOAK_JWKS_URL", ""),
			Audience: envconfig.Get("KEYCLOAK_AUDIENCE", ""),
			Issuer:   envconfig.Get("KEYCLOAK_ISSUER", ""),
		},
		Keycloak: KeycloakConfig{
			BaseURL:       envconfig.Get("KEYCLOAK_BASE_URL", "http://localhost:8081"),
			Realm:         envconfig.Get("KEYCLOAK_REALM", "ecocollect"),
			AdminRealm:    envconfig.Get("KEYCLOAK_ADMIN_REALM", "master"),
			AdminClientID: envconfig.Get("KEYCLOAK_ADMIN_CLIENT_ID", "admin-cli"),
			AdminUsername: envconfig.Get("KEYCLOAK_ADMIN_USERNAME", "admin"),
			AdminPassword: envconfig.Get("KEYCLOAK_ADMIN_PASSWORD", "admin"),
		},
		Sync: SyncConfig{
			StartupSync: envconfig.GetBool("SYNC_ON_STARTUP", true),
			MaxAttempts: envconfig.GetInt("SYNC_MAX_ATTEMPTS", usersync.DefaultMaxAttempts),
			Interval:    envconfig.GetDuration("SYNC_INTERVAL", usersync.DefaultInterval),
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
	}
	return cfg, envconfig.Validate(cfg)
}
