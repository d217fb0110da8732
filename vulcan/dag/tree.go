package dag

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
)

// RenderTree writes the dependency tree of the root package, one line per
// package, dependencies indented below their dependents.
func (d *DAG) RenderTree(w io.Writer) error {
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedRounded)

	if err := d.appendTree(l, d.root); err != nil {
		return err
	}

	_, err := io.WriteString(w, l.Render()+"\n")
	return errors.Wrap(err, "failed to write tree")
}

func (d *DAG) appendTree(l list.Writer, p *schema.Package) error {
	l.AppendItem(p.ID())

	deps, err := d.DirectDependencies(p)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		return nil
	}

	l.Indent()
	for _, dep := range deps {
		if err := d.appendTree(l, dep); err != nil {
			return err
		}
	}
	l.UnIndent()
	return nil
}
