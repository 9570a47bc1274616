package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/httpapi"
	"github.com/freeeve/chessarchive/internal/index"
	"github.com/freeeve/chessarchive/internal/tracking"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print chunk, record, index, and source counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printStatus(cmd.OutOrStdout())
		},
	}
}

func (a *app) printStatus(w io.Writer) error {
	chunks, err := a.openChunks()
	if err != nil {
		return err
	}
	set := index.Build(chunks.Chunks())

	names, err := dataset.ListArtifacts(a.layout.ArtifactsDir())
	if err != nil {
		return err
	}
	var size int64
	for _, name := range names {
		if fi, err := os.Stat(a.layout.ArtifactPath(name)); err == nil {
			size += fi.Size()
		}
	}

	fmt.Fprintf(w, "dataset   %s\n", a.layout.Root)
	fmt.Fprintf(w, "chunks    %s (capacity %s)\n", humanize.Comma(int64(len(chunks.Chunks()))), humanize.Comma(int64(chunks.Capacity())))
	fmt.Fprintf(w, "records   %s (next id %s)\n", humanize.Comma(int64(chunks.Len())), humanize.Comma(int64(chunks.NextID())))
	fmt.Fprintf(w, "artifacts %d files, %s\n", len(names), humanize.Bytes(uint64(size)))
	if d := set.Duplicates(); d > 0 {
		fmt.Fprintf(w, "duplicates %d (run repair --confirm-reslice to drop them)\n", d)
	}
	counts := set.Counts()
	for _, name := range dataset.IndexNames {
		fmt.Fprintf(w, "  %-22s %s keys\n", name, humanize.Comma(int64(counts[name])))
	}

	tr, err := tracking.Load(a.layout.TrackingPath())
	if err != nil {
		return err
	}
	for _, name := range tr.Names() {
		src := tr[name]
		records := 0
		for _, f := range src.Files {
			records += f.Records
		}
		checked := "never"
		if !src.LastChecked.IsZero() {
			checked = humanize.Time(src.LastChecked)
		}
		fmt.Fprintf(w, "source %-12s %d files, %s records, checked %s\n",
			name, len(src.Files), humanize.Comma(int64(records)), checked)
	}
	return nil
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP view of the local artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := a.openChunks()
			if err != nil {
				return err
			}
			set := index.Build(chunks.Chunks())
			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewRouter(a.log, a.layout, chunks, set),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8007", "listen address")
	return cmd
}

func serve(ctx context.Context, srv *http.Server, a *app) error {
	errc := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
