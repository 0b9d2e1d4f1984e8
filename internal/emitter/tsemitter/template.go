package tsemitter

import (
	"strings"

	"github.com/flosch/pongo2/v6"
)

// renderWithTemplate renders a bindings file through a user-supplied pongo2
// template. The template sees the same material the built-in renderer uses:
//
//	{{ tag }}      tag name of the group
//	{{ imports }}  rendered import header
//	{{ types }}    type definitions block
//	{{ body }}     parameter interfaces and bindings, without imports
//
// Compile and render errors are returned to the caller; the emitter decides
// whether they are fatal or fall back to the built-in renderer.
func renderWithTemplate(path string, art *Artifact, syms *symbolTracker, body string) (string, error) {
	tpl, err := pongo2.FromFile(path)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context{
		"tag":     art.Tag,
		"imports": strings.TrimRight(syms.importLines(), "\n"),
		"types":   art.Types,
		"body":    body,
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
