package validation

const (
	// Field names used in error messages
	ContactInfoField = "contact_info"
	CircleNameField  = "name"
	IdentityField    = "identity"

	// MaxIdentityLength bounds identities accepted from the CLI and HTTP API.
	// The ledger itself treats identities as opaque.
	MaxIdentityLength = 128
)
