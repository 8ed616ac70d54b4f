package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r, err := New(80, "dark")
	require.NoError(t, err, "unexpected error")
	require.NotNil(t, r, "expected non-nil renderer")
	require.Equal(t, 80, r.Width())
}

func TestRenderer_Render_Heading(t *testing.T) {
	r, err := New(80, "dark")
	require.NoError(t, err, "New error")

	result, err := r.Render("# Mission a1b2c3d4\n\nfix the tide tables")
	require.NoError(t, err, "Render error")

	require.Contains(t, result, "Mission a1b2c3d4")
	require.Contains(t, result, "fix the tide tables")
}

func TestRenderer_Render_List(t *testing.T) {
	r, err := New(80, "dark")
	require.NoError(t, err, "New error")

	result, err := r.Render("- implement: completed\n- review: running")
	require.NoError(t, err, "Render error")

	require.Contains(t, result, "implement")
	require.Contains(t, result, "review")
}

func TestRenderer_Render_Code(t *testing.T) {
	r, err := New(80, "light")
	require.NoError(t, err, "New error")

	result, err := r.Render("Worktree: `/tmp/burrows/mission-1`")
	require.NoError(t, err, "Render error")

	require.Contains(t, result, "/tmp/burrows/mission-1")
}
