// Package namespace derives storage-safe partition identifiers from
// user IDs and human-readable project names.
//
// Vector store collections are shared across every user of the deployment,
// so identifiers carry a fixed tenant marker plus the numeric user ID:
// two users can never collide even when their project slugs coincide.
package namespace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Marker is the fixed tenant prefix for every partition identifier.
const Marker = "user"

// Slug normalizes a human-readable project name into the restricted
// collection alphabet [a-z0-9-].
//
// Rules applied, in order:
//   - transliterate non-ASCII runes to their closest ASCII form
//   - lowercase
//   - collapse runs of whitespace, underscores and hyphens to one hyphen
//   - drop everything outside [a-z0-9-]
//   - trim leading/trailing hyphens
//
// Slug is pure and total: any input (empty, emoji-only, non-Latin) yields a
// valid, possibly empty, result. It is idempotent: Slug(Slug(x)) == Slug(x).
//
// Distinct names can slug to the same value ("My Project" and "my-project");
// such names address the same partition. This is accepted behavior, not a
// collision to disambiguate.
func Slug(name string) string {
	s := strings.ToLower(unidecode.Unidecode(name))

	var b strings.Builder
	b.Grow(len(s))
	hyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '_' || r == '-':
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
		// Anything else is dropped.
	}

	return strings.TrimRight(b.String(), "-")
}

// Resolve maps (user, project name) to the partition's collection identifier.
//
// Format: user-<id> for an empty slug, user-<id>-<slug> otherwise.
// Resolve never fails; a fully non-ASCII name degrades to the bare
// per-user identifier.
func Resolve(userID int64, projectName string) string {
	slug := Slug(projectName)
	if slug == "" {
		return fmt.Sprintf("%s-%d", Marker, userID)
	}
	return fmt.Sprintf("%s-%d-%s", Marker, userID, slug)
}

// Prefix returns the identifier prefix owned by a user, used to filter the
// global collection list down to one tenant.
func Prefix(userID int64) string {
	return fmt.Sprintf("%s-%d", Marker, userID)
}

// Owner extracts the user ID from a partition identifier. The second return
// is false for identifiers that were not produced by Resolve.
func Owner(identifier string) (int64, bool) {
	rest, ok := strings.CutPrefix(identifier, Marker+"-")
	if !ok {
		return 0, false
	}
	idPart, _, _ := strings.Cut(rest, "-")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DisplaySlug strips a user's prefix from an identifier, yielding the slug
// shown back to that user in project listings. Returns false when the
// identifier does not belong to the user.
func DisplaySlug(identifier string, userID int64) (string, bool) {
	prefix := Prefix(userID)
	if identifier == prefix {
		return "", true
	}
	slug, ok := strings.CutPrefix(identifier, prefix+"-")
	if !ok {
		return "", false
	}
	return slug, true
}
