// Package credstore persists the access and refresh credentials. It is
// pure storage: no validation, no network, safe to use before any
// request is issued.
package credstore

// Kind names one of the two persisted credential slots. The key names
// are fixed; other tooling in the same deployment may read them.
type Kind string

const (
	AccessToken  Kind = "access_token"
	RefreshToken Kind = "refresh_token"
)

// Store holds credential bytes. Get reports absence via the bool, never
// via an error; errors are reserved for the underlying persistence.
type Store interface {
	Get(kind Kind) (string, bool, error)
	Set(kind Kind, value string) error
	// SetPair writes both credentials of a renewal outcome.
	SetPair(access, refresh string) error
	Clear() error
}
