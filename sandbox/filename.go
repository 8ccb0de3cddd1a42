package sandbox

import (
	"strings"

	boxerrors "box/errors"
)

// FileAccessLevel controls how strictly the filename validator treats
// ALLOW_IF_FILENAME syscalls, per the -a flag.
type FileAccessLevel int

const (
	// FileAccessNone (level 0) denies every filename-bearing syscall.
	FileAccessNone FileAccessLevel = 0
	// FileAccessCWD (level 1) is the conservative default: bare filenames
	// go through the canonicaliser and rule scan like any other path.
	FileAccessCWD FileAccessLevel = 1
	// FileAccessLocal (level 2) additionally permits bare filenames with
	// no path separator (CWD-local files) outright.
	FileAccessLocal FileAccessLevel = 2
	// FileAccessBuiltins (level 3) additionally consults the built-in path
	// rules after user rules fail to match.
	FileAccessBuiltins FileAccessLevel = 3
	// FileAccessFull (level 4) permits every filename once it has been read,
	// skipping canonicalisation and rule evaluation, so a leftover ".." is
	// not refused either.
	FileAccessFull FileAccessLevel = 4
	// FileAccessUnrestricted (level 9) permits everything, unconditionally.
	FileAccessUnrestricted FileAccessLevel = 9
)

// MemReader reads a NUL-terminated string out of a traced process's address
// space, starting at addr, up to maxLen bytes.
type MemReader interface {
	ReadString(addr uintptr, maxLen int) (string, error)
}

// ValidateFilename implements §4.4, the filename validator invoked when an
// ActionAllowFilename syscall fires. The returned name is populated on a
// path-rule denial, so the caller can put it in the meta message; it is
// empty for a level-0 denial, a failed read, and at level 9, where nothing
// is read.
func ValidateFilename(mem MemReader, addr uintptr, level FileAccessLevel, userRules []PathRule) (string, error) {
	if level == FileAccessNone {
		return "", boxerrors.New(boxerrors.ErrForbiddenAccess, "valid-filename", "file access disabled")
	}
	if level == FileAccessUnrestricted {
		return "", nil
	}

	name, err := mem.ReadString(addr, 4096)
	if err != nil {
		return "", boxerrors.WrapWithDetail(err, boxerrors.ErrInconsistent, "read-filename", "failed to read filename from target")
	}

	if level >= FileAccessFull {
		return name, nil
	}

	if level >= FileAccessLocal && !strings.Contains(name, "/") && name != ".." {
		return name, nil
	}

	canon, badDotDot := canonicalizePath(name)

	action, matched := matchPathRules(userRules, canon)
	if !matched && level >= FileAccessBuiltins {
		action, matched = matchPathRules(defaultPathRules, canon)
	}

	allowed := matched && action == PathAllow && !badDotDot
	if !allowed {
		return name, boxerrors.Newf(boxerrors.ErrForbiddenAccess, "valid-filename", "Forbidden access to file %s", name)
	}
	return name, nil
}
