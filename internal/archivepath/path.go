// Package archivepath manipulates archive-internal paths: forward-slash,
// always-absolute strings addressing a link inside a container, independent
// of whatever path conventions the host OS uses for real files.
package archivepath

import (
	"strings"

	"golang.org/x/xerrors"
)

// Root is the path of the container's top-level group.
const Root = "/"

// InvalidPathError is returned whenever a path string cannot be normalized
// into a valid archive path (escapes above the root, contains an empty
// component, etc).
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return xerrors.Errorf("invalid archive path %q: %s", e.Path, e.Reason).Error()
}

// Normalize rewrites p into its canonical form: leading slash, no trailing
// slash (except for the root itself), no "." components, and ".." resolved
// against preceding components. An attempt to ascend past the root is
// rejected with an *InvalidPathError.
func Normalize(p string) (string, error) {
	if p == "" {
		return "", &InvalidPathError{Path: p, Reason: "empty path"}
	}

	parts := strings.Split(p, "/")
	var out []string
	for _, part := range parts {
		switch part {
		case "", ".":
			// skip: collapses repeated slashes and "." components, and
			// absorbs the empty component produced by a leading slash.
		case "..":
			if len(out) == 0 {
				return "", &InvalidPathError{Path: p, Reason: "path ascends above root"}
			}
			out = out[:len(out)-1]
		default:
			out = append(out, part)
		}
	}

	if len(out) == 0 {
		return Root, nil
	}
	return "/" + strings.Join(out, "/"), nil
}

// MustNormalize is Normalize but panics on error, for use with compile-time
// constant paths.
func MustNormalize(p string) string {
	n, err := Normalize(p)
	if err != nil {
		panic(err)
	}
	return n
}

// Split breaks a normalized path into its parent and its final component.
// Split("/") returns ("/", "").
func Split(p string) (parent, name string) {
	if p == Root {
		return Root, ""
	}
	idx := strings.LastIndexByte(p, '/')
	name = p[idx+1:]
	if idx == 0 {
		return Root, name
	}
	return p[:idx], name
}

// Parent returns the parent of p. Parent("/") returns "/".
func Parent(p string) string {
	parent, _ := Split(p)
	return parent
}

// Name returns the final path component of p. Name("/") returns "".
func Name(p string) string {
	_, name := Split(p)
	return name
}

// Join appends each of elems (single path components, never containing a
// slash) in turn to a base path, which must already be normalized. With no
// elems it returns the base path unchanged.
func Join(base string, elems ...string) string {
	for _, name := range elems {
		if base == Root {
			base = Root + name
		} else {
			base = base + "/" + name
		}
	}
	return base
}

// IsRoot reports whether p is the container root.
func IsRoot(p string) bool {
	return p == Root
}

// Ancestors returns the chain of ancestor directories of p, nearest first,
// stopping at (and including) stop. If stop is not an ancestor of p, the
// chain runs all the way to the root.
func Ancestors(p, stop string) []string {
	var chain []string
	for cur := Parent(p); ; cur = Parent(cur) {
		chain = append(chain, cur)
		if cur == stop || cur == Root {
			break
		}
	}
	return chain
}

// Depth counts the number of path components in p ("/" has depth 0).
func Depth(p string) int {
	if p == Root {
		return 0
	}
	return strings.Count(p, "/")
}
