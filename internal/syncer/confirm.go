package syncer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Confirmer approves an upload before anything is written remotely.
type Confirmer interface {
	Confirm(p *Plan, location string) (bool, error)
}

// AutoConfirm approves every plan.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(*Plan, string) (bool, error) { return true, nil }

// Prompt asks on Out and reads one line from In. Only "y" and "yes" approve;
// anything else, including an empty line or EOF, declines.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p Prompt) Confirm(plan *Plan, location string) (bool, error) {
	fmt.Fprintf(p.Out, "Upload %d artifacts (%s) to %s? [y/N]: ",
		len(plan.Uploads()), humanize.Bytes(uint64(plan.UploadBytes())), location)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
