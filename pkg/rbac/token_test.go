package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	t.Run("exact token", func(t *testing.T) {
		tok, err := ParseToken("projects.view")
		require.NoError(t, err)
		assert.Equal(t, "projects.view", tok.String())
		assert.Equal(t, "projects", tok.Resource())
		assert.False(t, tok.IsWildcard())
		assert.False(t, tok.IsGlobal())
	})

	t.Run("resource wildcard", func(t *testing.T) {
		tok, err := ParseToken("tasks.*")
		require.NoError(t, err)
		assert.Equal(t, "tasks.*", tok.String())
		assert.True(t, tok.IsWildcard())
		assert.False(t, tok.IsGlobal())
	})

	t.Run("global wildcard", func(t *testing.T) {
		tok, err := ParseToken("*")
		require.NoError(t, err)
		assert.Equal(t, "*", tok.String())
		assert.True(t, tok.IsGlobal())
		assert.True(t, tok.IsWildcard())
	})

	t.Run("malformed tokens", func(t *testing.T) {
		for _, s := range []string{
			"", ".", "projects", "projects.", ".view",
			"projects.view.extra", "proj ects.view", "*.view", "projects.vi*w",
		} {
			_, err := ParseToken(s)
			assert.Error(t, err, "expected %q to be rejected", s)
		}
	})

	t.Run("whitespace is trimmed", func(t *testing.T) {
		tok, err := ParseToken("  projects.view ")
		require.NoError(t, err)
		assert.Equal(t, "projects.view", tok.String())
	})
}

func TestPermissionSet_Has(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		set := NewPermissionSet()
		set.Add(MustToken("projects.view"))

		assert.True(t, set.Has(MustToken("projects.view")))
		assert.False(t, set.Has(MustToken("projects.create")))
		assert.False(t, set.Has(MustToken("tasks.view")))
	})

	t.Run("resource wildcard grants all actions under it", func(t *testing.T) {
		set := NewPermissionSet()
		set.Add(MustToken("projects.*"))

		assert.True(t, set.Has(MustToken("projects.view")))
		assert.True(t, set.Has(MustToken("projects.delete")))
		assert.True(t, set.Has(MustToken("projects.*")))
		assert.False(t, set.Has(MustToken("tasks.view")))
	})

	t.Run("global wildcard grants everything", func(t *testing.T) {
		set := NewPermissionSet()
		set.Add(MustToken("*"))

		assert.True(t, set.Has(MustToken("projects.view")))
		assert.True(t, set.Has(MustToken("anything.at_all")))
		assert.True(t, set.Has(MustToken("*")))
	})

	t.Run("exact grant does not satisfy wildcard request", func(t *testing.T) {
		set := NewPermissionSet()
		set.Add(MustToken("projects.view"))

		assert.False(t, set.Has(MustToken("projects.*")))
		assert.False(t, set.Has(MustToken("*")))
	})

	t.Run("empty set denies", func(t *testing.T) {
		set := NewPermissionSet()
		assert.True(t, set.IsEmpty())
		assert.False(t, set.Has(MustToken("projects.view")))
	})
}

func TestPermissionSet_Tokens(t *testing.T) {
	set := NewPermissionSet()
	set.Add(MustToken("tasks.view"))
	set.Add(MustToken("projects.*"))
	set.Add(MustToken("documents.upload"))

	assert.Equal(t, []string{"documents.upload", "projects.*", "tasks.view"}, set.Tokens())
}
