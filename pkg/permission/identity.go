package permission

import (
	"context"

	"github.com/tendant/pg-role-manager/pkg/dbcheck"
)

// IdentityValidator recognizes and normalizes principals. The concrete
// validator decides what counts as a manageable identity; the service
// never mutates anything for an unrecognized principal.
type IdentityValidator interface {
	// NormalizePrincipalName maps a raw principal (for example a
	// service account email) to its database role name.
	NormalizePrincipalName(raw string) string

	// IsRecognizedPrincipal reports whether the normalized principal is
	// manageable, with a human-readable reason on rejection.
	IsRecognizedPrincipal(ctx context.Context, q dbcheck.Querier, username string) (ok bool, reason string, err error)
}

// IAMIdentityValidator recognizes Cloud SQL IAM principals: existing,
// login-capable database users that are not system or reserved roles.
type IAMIdentityValidator struct{}

func (IAMIdentityValidator) NormalizePrincipalName(raw string) string {
	return dbcheck.NormalizeServiceAccountName(raw)
}

func (IAMIdentityValidator) IsRecognizedPrincipal(ctx context.Context, q dbcheck.Querier, username string) (bool, string, error) {
	return dbcheck.IsIAMUser(ctx, q, username)
}
