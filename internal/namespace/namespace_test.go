package namespace

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Biology", "biology"},
		{"spaces", "My Project", "my-project"},
		{"underscores", "my_project_notes", "my-project-notes"},
		{"mixed separators", "My  __ Project -- Notes", "my-project-notes"},
		{"punctuation stripped", "C++ (advanced)!", "c-advanced"},
		{"leading trailing", "  --hello--  ", "hello"},
		{"diacritics", "Café Déjà Vu", "cafe-deja-vu"},
		{"cyrillic", "Биология", "biologiia"},
		{"empty", "", ""},
		{"only punctuation", "!!!", ""},
		{"digits", "101 Dalmatians", "101-dalmatians"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.input))
		})
	}
}

func TestSlugIdempotent(t *testing.T) {
	inputs := []string{"My Project", "Café Déjà Vu", "Биология", "", "!!!", "a--b__c  d"}
	for _, in := range inputs {
		once := Slug(in)
		assert.Equal(t, once, Slug(once), "Slug must be idempotent for %q", in)
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "user-7-biology", Resolve(7, "Biology"))
	assert.Equal(t, "user-42-my-project", Resolve(42, "My Project"))

	// Degenerate slug still yields a valid identifier.
	assert.Equal(t, "user-7", Resolve(7, "!!!"))
	assert.Equal(t, "user-7", Resolve(7, ""))
}

func TestResolveDistinctUsers(t *testing.T) {
	// Same project name, different users: identifiers must never collide.
	names := []string{"Biology", "My Project", "", "Биология"}
	for _, name := range names {
		assert.NotEqual(t, Resolve(1, name), Resolve(2, name), "name %q", name)
	}
}

func TestResolveSlugCollision(t *testing.T) {
	// Distinct display names that normalize identically address the same
	// partition. Documented behavior.
	assert.Equal(t, Resolve(7, "My Project"), Resolve(7, "my-project"))
}

func TestOwner(t *testing.T) {
	id, ok := Owner("user-7-biology")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	id, ok = Owner("user-1234567")
	require.True(t, ok)
	assert.Equal(t, int64(1234567), id)

	_, ok = Owner("something-else")
	assert.False(t, ok)

	_, ok = Owner("user-notanumber")
	assert.False(t, ok)
}

func TestDisplaySlug(t *testing.T) {
	slug, ok := DisplaySlug("user-7-biology", 7)
	require.True(t, ok)
	assert.Equal(t, "biology", slug)

	// Bare identifier (degenerate slug).
	slug, ok = DisplaySlug("user-7", 7)
	require.True(t, ok)
	assert.Equal(t, "", slug)

	// Prefix of a longer user ID must not match.
	_, ok = DisplaySlug("user-71-chemistry", 7)
	assert.False(t, ok)

	_, ok = DisplaySlug("user-8-biology", 7)
	assert.False(t, ok)
}

func TestResolveNeverPanics(t *testing.T) {
	for i := 0; i < 256; i++ {
		assert.NotPanics(t, func() {
			_ = Resolve(int64(i), fmt.Sprintf("%c%c%c", rune(i), rune(i*31), rune(i*101)))
		})
	}
}
