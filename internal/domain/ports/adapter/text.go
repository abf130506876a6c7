package adapter

// Phrasebook renders user-facing text by message key in the user's language.
// Unknown keys come back as the key itself.
type Phrasebook interface {
	T(key string, args ...interface{}) string
}
