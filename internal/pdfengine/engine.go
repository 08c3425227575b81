// Package pdfengine wraps pdfcpu behind the small transform surface the
// operation handlers need. Every transform takes the already-resolved
// watermark decision; the engine stamps the output iff the request did not
// earn watermark-free access.
package pdfengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const watermarkDesc = "font:Helvetica, points:48, rot:45, op:.35, col:0.55 0.55 0.55"

// Options carries the per-request watermark decision into a transform.
type Options struct {
	ApplyWatermark bool
	WatermarkText  string
}

// SplitPart is one output document of a split operation.
type SplitPart struct {
	FileName string `json:"file_name"`
	Data     []byte `json:"data"`
}

type Engine struct {
	log  *zap.Logger
	conf *model.Configuration
}

func New(log *zap.Logger) *Engine {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Engine{
		log:  log.Named("pdfengine"),
		conf: conf,
	}
}

var Module = fx.Module("pdfengine",
	fx.Provide(New),
)

// Validate checks that data parses as a well-formed, unencrypted PDF.
func (e *Engine) Validate(ctx context.Context, data []byte) error {
	return e.withWorkspace(ctx, func(dir string) error {
		in, err := e.writeInput(dir, "in.pdf", data)
		if err != nil {
			return err
		}
		if err := api.ValidateFile(in, e.conf); err != nil {
			return classify(err)
		}
		return nil
	})
}

// PageCount returns the number of pages in data.
func (e *Engine) PageCount(ctx context.Context, data []byte) (int, error) {
	var count int
	err := e.withWorkspace(ctx, func(dir string) error {
		in, err := e.writeInput(dir, "in.pdf", data)
		if err != nil {
			return err
		}
		n, err := api.PageCountFile(in)
		if err != nil {
			return classify(err)
		}
		count = n
		return nil
	})
	return count, err
}

// Merge concatenates the inputs in order into one document.
func (e *Engine) Merge(ctx context.Context, inputs [][]byte, opts Options) ([]byte, error) {
	var out []byte
	err := e.withWorkspace(ctx, func(dir string) error {
		inFiles := make([]string, 0, len(inputs))
		for i, data := range inputs {
			in, err := e.writeInput(dir, fmt.Sprintf("in_%03d.pdf", i), data)
			if err != nil {
				return err
			}
			inFiles = append(inFiles, in)
		}

		merged := filepath.Join(dir, "merged.pdf")
		if err := api.MergeCreateFile(inFiles, merged, false, e.conf); err != nil {
			return classify(err)
		}

		final, err := e.finalize(dir, merged, opts)
		if err != nil {
			return err
		}
		out = final
		return nil
	})
	return out, err
}

// Split cuts the input into spans of the given page count; span 1 produces
// one document per page.
func (e *Engine) Split(ctx context.Context, input []byte, span int, opts Options) ([]SplitPart, error) {
	if span < 1 {
		span = 1
	}

	var parts []SplitPart
	err := e.withWorkspace(ctx, func(dir string) error {
		in, err := e.writeInput(dir, "in.pdf", input)
		if err != nil {
			return err
		}

		outDir := filepath.Join(dir, "parts")
		if err := os.Mkdir(outDir, 0o700); err != nil {
			return err
		}
		if err := api.SplitFile(in, outDir, span, e.conf); err != nil {
			return classify(err)
		}

		entries, err := os.ReadDir(outDir)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".pdf") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(outDir, name)
			data, err := e.finalize(dir, path, opts)
			if err != nil {
				return err
			}
			parts = append(parts, SplitPart{FileName: name, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parts, nil
}

// Compress rewrites the document through pdfcpu's optimizer.
func (e *Engine) Compress(ctx context.Context, input []byte, opts Options) ([]byte, error) {
	var out []byte
	err := e.withWorkspace(ctx, func(dir string) error {
		in, err := e.writeInput(dir, "in.pdf", input)
		if err != nil {
			return err
		}

		optimized := filepath.Join(dir, "optimized.pdf")
		if err := api.OptimizeFile(in, optimized, e.conf); err != nil {
			return classify(err)
		}

		final, err := e.finalize(dir, optimized, opts)
		if err != nil {
			return err
		}
		out = final
		return nil
	})
	return out, err
}

// Stamp draws the caller's own text watermark. The free-tier service
// watermark is still applied on top when the request has no paid access.
func (e *Engine) Stamp(ctx context.Context, input []byte, text string, opts Options) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty watermark text", ErrInternal)
	}

	var out []byte
	err := e.withWorkspace(ctx, func(dir string) error {
		in, err := e.writeInput(dir, "in.pdf", input)
		if err != nil {
			return err
		}

		stamped := filepath.Join(dir, "stamped.pdf")
		if err := api.AddTextWatermarksFile(in, stamped, nil, true, text, watermarkDesc, e.conf); err != nil {
			return classify(err)
		}

		final, err := e.finalize(dir, stamped, opts)
		if err != nil {
			return err
		}
		out = final
		return nil
	})
	return out, err
}

// finalize applies the service watermark when required and reads the result.
func (e *Engine) finalize(dir, path string, opts Options) ([]byte, error) {
	if opts.ApplyWatermark {
		text := strings.TrimSpace(opts.WatermarkText)
		if text == "" {
			text = "Created with Papermill Free"
		}
		watermarked := filepath.Join(dir, "wm_"+filepath.Base(path))
		if err := api.AddTextWatermarksFile(path, watermarked, nil, false, text, watermarkDesc, e.conf); err != nil {
			return nil, classify(err)
		}
		path = watermarked
	}
	return os.ReadFile(path)
}

func (e *Engine) withWorkspace(ctx context.Context, fn func(dir string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "papermill-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.log.Warn("workspace cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}()
	return fn(dir)
}

func (e *Engine) writeInput(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
