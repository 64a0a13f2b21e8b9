package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// PageRenderer rasterises a single PDF page to PNG.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdf []byte, page int) ([]byte, error)
}

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return out, nil
}

// PopplerRenderer renders pages with poppler's pdftoppm.
type PopplerRenderer struct {
	Runner CommandRunner
	Binary string // Defaults to "pdftoppm"
	DPI    int    // Defaults to 150
}

// NewPopplerRenderer returns a renderer that shells out to pdftoppm.
func NewPopplerRenderer() *PopplerRenderer {
	return &PopplerRenderer{Runner: ExecRunner{}, Binary: "pdftoppm", DPI: 150}
}

// RenderPage writes the PDF to a scratch directory and renders one page.
func (r *PopplerRenderer) RenderPage(ctx context.Context, pdf []byte, page int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "querysafe-render-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0600); err != nil {
		return nil, err
	}

	binary := r.Binary
	if binary == "" {
		binary = "pdftoppm"
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 150
	}

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	if _, err := r.Runner.Run(ctx, binary,
		"-png", "-singlefile",
		"-r", strconv.Itoa(dpi),
		"-f", n, "-l", n,
		input, prefix,
	); err != nil {
		return nil, err
	}
	return os.ReadFile(prefix + ".png")
}
