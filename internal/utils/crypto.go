// internal/utils/crypto.go
package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a lowercase URL-safe id, used for blob keys.
func NanoID(size int) string {
	return gonanoid.MustGenerate(nanoidAlphabet, size)
}
