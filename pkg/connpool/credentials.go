package connpool

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CredentialSource supplies admin credentials for a pool key. The
// production deployment plugs in a secret-manager-backed source;
// the implementations here cover static configuration and environment
// lookups.
type CredentialSource interface {
	AdminCredentials(ctx context.Context, key PoolKey) (user, password string, err error)
}

// StaticCredentialSource returns the same credentials for every key.
type StaticCredentialSource struct {
	User     string
	Password string
}

func (s StaticCredentialSource) AdminCredentials(ctx context.Context, key PoolKey) (string, string, error) {
	if s.User == "" {
		return "", "", fmt.Errorf("no admin user configured")
	}
	return s.User, s.Password, nil
}

// EnvCredentialSource resolves the admin password from the environment,
// trying an instance-specific variable first and falling back to the
// shared one. With Prefix "PG_ADMIN_PASSWORD" and instance "sales-prod"
// it looks up PG_ADMIN_PASSWORD_SALES_PROD, then PG_ADMIN_PASSWORD.
type EnvCredentialSource struct {
	User   string
	Prefix string
}

func (s EnvCredentialSource) AdminCredentials(ctx context.Context, key PoolKey) (string, string, error) {
	if s.User == "" {
		return "", "", fmt.Errorf("no admin user configured")
	}
	instanceVar := s.Prefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key.InstanceName))
	if password, ok := os.LookupEnv(instanceVar); ok {
		return s.User, password, nil
	}
	if password, ok := os.LookupEnv(s.Prefix); ok {
		return s.User, password, nil
	}
	return "", "", fmt.Errorf("no admin password found for instance %s (tried %s, %s)", key.InstanceName, instanceVar, s.Prefix)
}
