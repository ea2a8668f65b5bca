package entity

import (
	"regexp"
	"strings"
	"time"

	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
)

// SchemaPrefix is prepended to every derived schema name so tenant schemas
// can never collide with the shared registry namespace.
const SchemaPrefix = "tenant_"

var (
	nonAlnumRun     = regexp.MustCompile(`[^a-z0-9]+`)
	validSlug       = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	validSchemaName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Tenant is one isolated customer organization. Identity is issued by the
// external identity provider; slug and schema name are derived once at
// registration and never change afterwards.
type Tenant struct {
	Identity   string
	Name       string
	Slug       string
	SchemaName string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTenant builds a tenant for registration, deriving the slug from the
// display name when none is supplied and the schema name from the slug.
func NewTenant(identity, name, slug string) (*Tenant, error) {
	if identity == "" {
		return nil, errs.ErrInvalidIdentity
	}
	if slug == "" {
		slug = DeriveSlug(name)
	}
	if !validSlug.MatchString(slug) {
		return nil, errs.ErrInvalidSlug
	}
	schemaName := SchemaNameForSlug(slug)
	if !validSchemaName.MatchString(schemaName) {
		return nil, errs.ErrInvalidSlug
	}
	return &Tenant{
		Identity:   identity,
		Name:       name,
		Slug:       slug,
		SchemaName: schemaName,
		Active:     true,
	}, nil
}

// DeriveSlug lowercases the display name, collapses every run of
// non-alphanumeric characters into a single hyphen and trims leading and
// trailing hyphens.
func DeriveSlug(name string) string {
	slug := nonAlnumRun.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// SchemaNameForSlug is the one-way derivation from slug to physical schema
// name. Hyphens become underscores; the derivation is deterministic so the
// same slug always maps to the same schema.
func SchemaNameForSlug(slug string) string {
	return SchemaPrefix + strings.ReplaceAll(slug, "-", "_")
}
