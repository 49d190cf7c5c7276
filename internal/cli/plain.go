package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muhammadolammi/coverletter/internal/generation"
	"github.com/muhammadolammi/coverletter/internal/session"
)

const (
	linksFile  = "key_points.md"
	letterFile = "cover_letter.md"
)

// runPlain generates without the TUI. With outDir each task streams into
// its own file; otherwise both outputs are buffered and printed to w once
// the run is over, so the two streams never interleave.
func runPlain(ctx context.Context, svc *generation.Service, st *session.State, outDir string, w io.Writer, out printer) (generation.Report, error) {
	if outDir != "" {
		return runToFiles(ctx, svc, st, outDir, out)
	}

	links, letter := generation.NewBufferSink(), generation.NewBufferSink()
	report, err := svc.Generate(ctx, st, generation.Sinks{Links: links, CoverLetter: letter})
	if err != nil {
		return report, err
	}
	printSection(w, "Key points", links)
	printSection(w, "Cover Letter", letter)
	return report, nil
}

func printSection(w io.Writer, title string, b *generation.BufferSink) {
	boldColor.Fprintf(w, "## %s\n\n", title)
	fmt.Fprint(w, b.Text())
	if err := b.Err(); err != nil {
		errorColor.Fprintf(w, "\n%s", generation.ErrorMarker(err))
	}
	fmt.Fprint(w, "\n\n")
}

func runToFiles(ctx context.Context, svc *generation.Service, st *session.State, outDir string, out printer) (generation.Report, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return generation.Report{}, fmt.Errorf("failed to create output dir: %w", err)
	}
	linksPath, letterPath := filepath.Join(outDir, linksFile), filepath.Join(outDir, letterFile)

	lf, err := os.Create(linksPath)
	if err != nil {
		return generation.Report{}, fmt.Errorf("failed to create %s: %w", linksPath, err)
	}
	defer lf.Close()
	cf, err := os.Create(letterPath)
	if err != nil {
		return generation.Report{}, fmt.Errorf("failed to create %s: %w", letterPath, err)
	}
	defer cf.Close()

	links, letter := generation.NewWriterSink(lf), generation.NewWriterSink(cf)
	report, err := svc.Generate(ctx, st, generation.Sinks{Links: links, CoverLetter: letter})
	if err != nil {
		return report, err
	}
	for path, s := range map[string]*generation.WriterSink{linksPath: links, letterPath: letter} {
		if werr := s.WriteErr(); werr != nil {
			out.Error("writing %s: %v", path, werr)
		}
	}
	out.Success("wrote %s and %s", linksPath, letterPath)
	return report, nil
}
