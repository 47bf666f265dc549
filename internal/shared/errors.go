package shared

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation against a status that forbids it.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
)

// UserSafeMessage maps internal errors to a message that can be rendered to
// the caller without leaking storage details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Data tidak ditemukan"
	case errors.Is(err, ErrInvalidState):
		return "Status dokumen tidak mengizinkan aksi ini"
	case errors.Is(err, ErrValidation):
		return "Input tidak valid"
	case errors.Is(err, ErrIdempotencyConflict):
		return "Permintaan dengan kunci ini sudah diproses"
	default:
		return "Terjadi kesalahan, silakan coba lagi"
	}
}
