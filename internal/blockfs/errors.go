package blockfs

import "golang.org/x/xerrors"

// Kind classifies a blockfs error into the taxonomy the external request
// surface reports against. Errors propagate without rollback: a write that
// fails partway leaves any bitmap bits it already flipped set.
type Kind int

const (
	// KindNotFound means a path segment was missing during resolution.
	KindNotFound Kind = iota + 1
	// KindInvalidInput means malformed input: a file used as a directory,
	// an unknown entry-kind byte, an empty leaf name, or start > end in a
	// byte range.
	KindInvalidInput
	// KindOutOfMemory means the bitmap had no free bit during cluster
	// growth, or the backing store's Grow failed.
	KindOutOfMemory
	// KindOther is the catchall, including name conflicts.
	KindOther
	// KindIO is a pass-through failure from the backing memory's
	// Read/Write/Grow.
	KindIO
)

// Error is a taxonomy-tagged error returned by file system operations.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// ErrNotFound reports a missing path segment.
func ErrNotFound(segment string) error {
	return newError(KindNotFound, xerrors.Errorf("blockfs: not found: %s", segment).Error())
}

// ErrInvalidInput reports malformed input.
func ErrInvalidInput(msg string) error {
	return newError(KindInvalidInput, xerrors.Errorf("blockfs: invalid input: %s", msg).Error())
}

// ErrOutOfMemory reports allocator or backing-store exhaustion.
func ErrOutOfMemory(msg string) error {
	return newError(KindOutOfMemory, xerrors.Errorf("blockfs: out of memory: %s", msg).Error())
}

// ErrOther is the catchall taxonomy member, used for name conflicts.
func ErrOther(msg string) error {
	return newError(KindOther, xerrors.Errorf("blockfs: %s", msg).Error())
}
