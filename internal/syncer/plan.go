package syncer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/freeeve/chessarchive/internal/dataset"
)

// Kind classifies one artifact in a plan.
type Kind int

const (
	Unchanged Kind = iota
	New
	Modified
	RemoteOnly
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case New:
		return "new"
	case Modified:
		return "modified"
	case RemoteOnly:
		return "remote-only"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Change is the planned fate of one artifact.
type Change struct {
	Name       string
	Kind       Kind
	LocalSize  int64
	RemoteSize int64
}

// Delta is the size change of a modified artifact.
func (c Change) Delta() int64 { return c.LocalSize - c.RemoteSize }

// Plan is the content diff between local artifacts and the remote snapshot.
type Plan struct {
	Changes []Change
}

// Count returns the number of changes of kind k.
func (p *Plan) Count(k Kind) int {
	n := 0
	for _, c := range p.Changes {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Uploads returns the new and modified artifacts.
func (p *Plan) Uploads() []Change {
	var out []Change
	for _, c := range p.Changes {
		if c.Kind == New || c.Kind == Modified {
			out = append(out, c)
		}
	}
	return out
}

// Empty reports whether there is nothing to upload.
func (p *Plan) Empty() bool { return len(p.Uploads()) == 0 }

// UploadBytes is the total size of the uploads.
func (p *Plan) UploadBytes() int64 {
	var n int64
	for _, c := range p.Uploads() {
		n += c.LocalSize
	}
	return n
}

// Diff compares every local artifact in dir against snap by content.
func Diff(dir string, snap *Snapshot) (*Plan, error) {
	names, err := dataset.ListArtifacts(dir)
	if err != nil {
		return nil, err
	}
	plan := &Plan{}
	local := make(map[string]bool, len(names))
	for _, name := range names {
		local[name] = true
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		c := Change{Name: name, LocalSize: int64(len(data))}
		e, ok := snap.Entry(name)
		switch {
		case !ok:
			c.Kind = New
		case e.sameBytes(data):
			c.Kind = Unchanged
			c.RemoteSize = e.Size
		default:
			c.Kind = Modified
			c.RemoteSize = e.Size
		}
		plan.Changes = append(plan.Changes, c)
	}
	for _, e := range snap.Entries {
		if !local[e.Key] {
			plan.Changes = append(plan.Changes, Change{Name: e.Key, Kind: RemoteOnly, RemoteSize: e.Size})
		}
	}
	sort.Slice(plan.Changes, func(i, j int) bool { return plan.Changes[i].Name < plan.Changes[j].Name })
	return plan, nil
}

func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return "+" + humanize.Bytes(uint64(n))
}

// Report renders the plan for a human.
func Report(w io.Writer, p *Plan) {
	added := color.New(color.FgGreen)
	changed := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	for _, c := range p.Changes {
		switch c.Kind {
		case New:
			added.Fprintf(w, "  + %-24s %s\n", c.Name, humanize.Bytes(uint64(c.LocalSize)))
		case Modified:
			changed.Fprintf(w, "  ~ %-24s %s -> %s (%s)\n", c.Name,
				humanize.Bytes(uint64(c.RemoteSize)), humanize.Bytes(uint64(c.LocalSize)), signedBytes(c.Delta()))
		case RemoteOnly:
			faint.Fprintf(w, "  ? %-24s only on remote\n", c.Name)
		}
	}
	fmt.Fprintf(w, "%d new, %d modified, %d unchanged, %d remote-only\n",
		p.Count(New), p.Count(Modified), p.Count(Unchanged), p.Count(RemoteOnly))
	if p.Empty() {
		fmt.Fprintln(w, "nothing to upload")
		return
	}
	fmt.Fprintf(w, "upload %d artifacts, %s\n", len(p.Uploads()), humanize.Bytes(uint64(p.UploadBytes())))
}
