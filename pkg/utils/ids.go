package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a 21 character lowercase id, used for claim tokens,
// attempt ids and storage keys.
func NewID() (string, error) {
	return gonanoid.Generate(idAlphabet, 21)
}
