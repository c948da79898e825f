package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"sales_public_reader"`, quoteIdent("sales_public_reader"))
	// Service account role names carry @ and dots; quoting keeps them
	// safe to embed.
	assert.Equal(t, `"my-service@acme-prod.iam"`, quoteIdent("my-service@acme-prod.iam"))
	// Embedded quotes are doubled, so breaking out of the identifier is
	// not possible.
	assert.Equal(t, `"evil""; DROP TABLE users;--"`, quoteIdent(`evil"; DROP TABLE users;--`))
}

func TestObjectRevokeStatements(t *testing.T) {
	statements := objectRevokeStatements("reporting", "my-service@acme-prod.iam")
	require.Len(t, statements, 7)

	assert.Equal(t,
		`REVOKE ALL PRIVILEGES ON ALL TABLES IN SCHEMA "reporting" FROM "my-service@acme-prod.iam"`,
		statements[0])
	assert.Equal(t,
		`ALTER DEFAULT PRIVILEGES IN SCHEMA "reporting" REVOKE ALL PRIVILEGES ON TABLES FROM "my-service@acme-prod.iam"`,
		statements[4])

	for _, statement := range statements {
		assert.Contains(t, statement, `"reporting"`)
		assert.Contains(t, statement, `"my-service@acme-prod.iam"`)
	}
}

func TestIAMIdentityValidatorNormalization(t *testing.T) {
	validator := IAMIdentityValidator{}
	assert.Equal(t, "my-service@acme-prod.iam",
		validator.NormalizePrincipalName("my-service@acme-prod.iam.gserviceaccount.com"))
}
