package workflow

import (
	"embed"
	"io/fs"
)

// builtinFiles embeds the workflow manifests and prompt templates that
// ship with the binary.
//
//go:embed builtin
var builtinFiles embed.FS

// BuiltinFS returns the embedded builtin workflow tree rooted at the
// manifests themselves, without the "builtin/" prefix.
func BuiltinFS() (fs.FS, error) {
	return fs.Sub(builtinFiles, "builtin")
}
