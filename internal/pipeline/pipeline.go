// Package pipeline drives a one-shot simulation batch: admission,
// rasterization, variant derivation and archive assembly for every
// uploaded document. The whole run is a pure function of the uploaded
// bytes, the requested scale and the resource limits.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/ykori/colorvisionflow/internal/archive"
	"github.com/ykori/colorvisionflow/internal/colorsim"
	"github.com/ykori/colorvisionflow/internal/governor"
	"github.com/ykori/colorvisionflow/internal/render"
)

// ErrBatchEmpty is returned when no admissible pages exist: every
// document was encrypted, unreadable, rejected or empty. No archive is
// produced in that case.
var ErrBatchEmpty = errors.New("pipeline: no processable input")

// Input is one uploaded document: raw bytes plus the untrusted
// display name the client supplied.
type Input struct {
	Name string
	Data []byte
}

// Result summarizes a completed batch.
type Result struct {
	// Archive is the finished zip blob.
	Archive []byte
	// Entries is the number of archive members written.
	Entries int
	// TotalSteps and CompletedSteps expose the final progress counter
	// (five steps per admitted page).
	TotalSteps     int
	CompletedSteps int
}

// Pipeline converts batches of PDFs into variant image archives.
type Pipeline struct {
	renderer render.Renderer
	limits   governor.Limits
	reporter Reporter
}

// New assembles a pipeline. A nil reporter discards all signals.
func New(renderer render.Renderer, limits governor.Limits, reporter Reporter) *Pipeline {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Pipeline{renderer: renderer, limits: limits, reporter: reporter}
}

// admission is one document that survived the pre-flight pass.
type admission struct {
	input     Input
	sanitized string
	pages     int
}

// Run processes the batch at the given scale and returns the finished
// archive. Per-document and per-page failures are reported and
// isolated; the only terminal errors are ErrBatchEmpty and context
// cancellation.
func (p *Pipeline) Run(ctx context.Context, inputs []Input, requestedScale float64) (*Result, error) {
	scale := p.limits.ClampScale(requestedScale)

	admitted, total := p.admit(inputs)
	if total == 0 {
		p.reporter.BatchEmpty()
		return nil, ErrBatchEmpty
	}

	asm := archive.NewAssembler()
	progress := &counter{total: total, reporter: p.reporter}

	for _, a := range admitted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.processDocument(ctx, a, scale, asm, progress); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Unreadable on reopen. Already counted in total, so the
			// final counter may fall short; the signal still lands.
			p.reporter.Skipped(a.input.Name, ReasonUnreadable)
		}
	}

	blob, err := asm.Finalize()
	if err != nil {
		return nil, err
	}
	return &Result{
		Archive:        blob,
		Entries:        asm.Entries(),
		TotalSteps:     total,
		CompletedSteps: progress.completed,
	}, nil
}

// admit applies the batch-level ceilings and precomputes the total
// step count without materializing any bitmaps. Documents are opened
// once here for counting and reopened for processing, so each handle
// stays scoped to a single pass.
func (p *Pipeline) admit(inputs []Input) ([]admission, int) {
	kept, truncated := p.limits.AdmitFiles(len(inputs))
	if truncated {
		for _, in := range inputs[kept:] {
			p.reporter.Skipped(in.Name, ReasonFileLimit)
		}
		inputs = inputs[:kept]
	}

	var admitted []admission
	total := 0
	for _, in := range inputs {
		if !archive.HasPDFExtension(in.Name) {
			p.reporter.Skipped(in.Name, ReasonBadExtension)
			continue
		}
		doc, err := p.renderer.Open(in.Data)
		if err != nil {
			p.reporter.Skipped(in.Name, skipReason(err))
			continue
		}
		pages, pagesTruncated := p.limits.AdmitPages(doc.PageCount())
		_ = doc.Close()
		if pagesTruncated {
			p.reporter.Truncated(in.Name, p.limits.MaxPagesPerFile)
		}
		if pages == 0 {
			continue
		}
		admitted = append(admitted, admission{
			input:     in,
			sanitized: archive.SanitizeName(in.Name),
			pages:     pages,
		})
		total += pages * len(colorsim.Variants)
	}
	return admitted, total
}

func skipReason(err error) string {
	if errors.Is(err, render.ErrEncrypted) {
		return ReasonEncrypted
	}
	return ReasonUnreadable
}

// processDocument reopens one admitted document and walks its pages.
// The handle is released on every exit path.
func (p *Pipeline) processDocument(ctx context.Context, a admission, scale float64, asm *archive.Assembler, progress *counter) error {
	doc, err := p.renderer.Open(a.input.Data)
	if err != nil {
		return err
	}
	defer doc.Close()

	for pageNum := 1; pageNum <= a.pages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processPage(doc, a, pageNum, scale, asm, progress); err != nil {
			p.reporter.PageFailed(a.input.Name, pageNum)
			continue
		}
	}
	return nil
}

// processPage rasterizes one page and archives its five renditions in
// the fixed variant order. The source bitmap and all variants go out
// of scope when this returns, keeping peak memory at one page's worth
// of pixel buffers regardless of batch size.
func (p *Pipeline) processPage(doc render.Document, a admission, pageNum int, scale float64, asm *archive.Assembler, progress *counter) error {
	page, err := doc.Page(pageNum)
	if err != nil {
		return err
	}

	width, height := page.Size()
	effective := p.limits.ResolveScale(width, height, scale)

	src, err := page.Rasterize(effective)
	if err != nil {
		return err
	}

	// The five variants only read the shared source, so they derive
	// concurrently. Archive writes stay serialized below, in variant
	// order, which keeps entry ordering and progress deterministic.
	var variants [len(colorsim.Variants)]*colorsim.Bitmap
	g := new(errgroup.Group)
	for i, v := range colorsim.Variants {
		g.Go(func() error {
			out, err := colorsim.Simulate(src, v)
			if err != nil {
				return err
			}
			variants[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, v := range colorsim.Variants {
		data, err := encodePNG(variants[i])
		if err != nil {
			return err
		}
		if err := asm.Put(v, a.sanitized, pageNum, data); err != nil {
			return err
		}
		progress.step()
	}
	return nil
}

func encodePNG(bmp *colorsim.Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, bmp.Image(), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// counter is the monotonic progress counter. All increments happen on
// the coordinating goroutine; it exists for observability only.
type counter struct {
	completed int
	total     int
	reporter  Reporter
}

func (c *counter) step() {
	c.completed++
	c.reporter.Progress(c.completed, c.total)
}
