package crawler

import "errors"

// Link filtering results. Neither is a failure; callers drop the candidate.
var (
	ErrRejected  = errors.New("link rejected")
	ErrOffDomain = errors.New("link outside base host")
)

// Per-URL failures recorded as failed in the session.
var (
	ErrRender       = errors.New("render failed")
	ErrEmptyContent = errors.New("no extractable content")
	ErrPersistence  = errors.New("persist artifact")
)

// ErrBackendUnavailable is fatal and returned before any URL is processed.
var ErrBackendUnavailable = errors.New("render backend unavailable")

// FailureReason maps a per-URL error to a short metrics label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "render"
	}
}
