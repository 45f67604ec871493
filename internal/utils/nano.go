package utils

import (
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// 32 symbols from a 62 character alphabet is ~190 bits, comfortably past
	// the 128 bits a submission id needs.
	NanoidSize     = 32
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func NanoID() string {
	return NanoIDSize(NanoidSize)
}

func NanoIDSize(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(nanoidAlphabet, size)
}

// SubmissionID returns a fresh random submission identifier.
func SubmissionID() string {
	return NanoID()
}

// BlobName returns a random object name: 32 hex characters plus ext.
func BlobName(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ToLower(ext)
}
