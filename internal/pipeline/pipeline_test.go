package pipeline_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ykori/colorvisionflow/internal/colorsim"
	"github.com/ykori/colorvisionflow/internal/governor"
	"github.com/ykori/colorvisionflow/internal/pipeline"
	"github.com/ykori/colorvisionflow/internal/render"
)

type pageSpec struct {
	width, height float64
	failRaster    bool
	lastScale     float64
}

type docSpec struct {
	encrypted bool
	pages     []pageSpec
	opens     int
	closes    int
}

// fakeRenderer serves documents keyed by their byte content.
type fakeRenderer struct {
	docs map[string]*docSpec
}

func (r *fakeRenderer) Open(data []byte) (render.Document, error) {
	spec, ok := r.docs[string(data)]
	if !ok {
		return nil, render.ErrUnreadable
	}
	if spec.encrypted {
		return nil, render.ErrEncrypted
	}
	spec.opens++
	return &fakeDocument{spec: spec}, nil
}

type fakeDocument struct {
	spec   *docSpec
	closed bool
}

func (d *fakeDocument) PageCount() int { return len(d.spec.pages) }

func (d *fakeDocument) Page(number int) (render.Page, error) {
	if number < 1 || number > len(d.spec.pages) {
		return nil, fmt.Errorf("page %d out of range", number)
	}
	return &fakePage{spec: &d.spec.pages[number-1]}, nil
}

func (d *fakeDocument) Close() error {
	if d.closed {
		return fmt.Errorf("document closed twice")
	}
	d.closed = true
	d.spec.closes++
	return nil
}

type fakePage struct {
	spec *pageSpec
}

func (p *fakePage) Size() (float64, float64) { return p.spec.width, p.spec.height }

func (p *fakePage) Rasterize(scale float64) (*colorsim.Bitmap, error) {
	if p.spec.failRaster {
		return nil, fmt.Errorf("raster engine exploded")
	}
	p.spec.lastScale = scale
	w := int(math.Max(1, p.spec.width*scale))
	h := int(math.Max(1, p.spec.height*scale))
	bmp := colorsim.NewBitmap(w, h)
	for i := range bmp.Pix {
		bmp.Pix[i] = byte(i % 251)
	}
	return bmp, nil
}

type signal struct {
	kind string
	name string
	n    int
}

// recorder captures every reporter signal in order.
type recorder struct {
	signals    []signal
	progress   [][2]int
	batchEmpty int
}

func (r *recorder) Skipped(name, reason string) {
	r.signals = append(r.signals, signal{kind: "skipped:" + reason, name: name})
}
func (r *recorder) Truncated(name string, limit int) {
	r.signals = append(r.signals, signal{kind: "truncated", name: name, n: limit})
}
func (r *recorder) PageFailed(name string, page int) {
	r.signals = append(r.signals, signal{kind: "page-failed", name: name, n: page})
}
func (r *recorder) Progress(completed, total int) {
	r.progress = append(r.progress, [2]int{completed, total})
}
func (r *recorder) BatchEmpty() { r.batchEmpty++ }

func smallPage() pageSpec { return pageSpec{width: 100, height: 100} }

func entryNames(t *testing.T, blob []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestRunTwoPageDocument(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"doc1": {pages: []pageSpec{smallPage(), smallPage()}},
	}}
	rec := &recorder{}
	pl := pipeline.New(renderer, governor.DefaultLimits(), rec)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "report.pdf", Data: []byte("doc1")},
	}, 1.0)
	require.NoError(t, err)

	require.Equal(t, 10, result.Entries)
	require.Equal(t, 10, result.TotalSteps)
	require.Equal(t, 10, result.CompletedSteps)

	want := []string{
		"common/report.pdf_p1.png",
		"protanopia/report.pdf_p1.png",
		"deuteranopia/report.pdf_p1.png",
		"tritanopia/report.pdf_p1.png",
		"achromat/report.pdf_p1.png",
		"common/report.pdf_p2.png",
		"protanopia/report.pdf_p2.png",
		"deuteranopia/report.pdf_p2.png",
		"tritanopia/report.pdf_p2.png",
		"achromat/report.pdf_p2.png",
	}
	require.Equal(t, want, entryNames(t, result.Archive))

	// Monotonic progress, one increment per archived variant.
	require.Len(t, rec.progress, 10)
	for i, p := range rec.progress {
		require.Equal(t, [2]int{i + 1, 10}, p)
	}
	require.Empty(t, rec.signals)
	require.Zero(t, rec.batchEmpty)
}

func TestRunEncryptedOnlyIsBatchEmpty(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"locked": {encrypted: true},
	}}
	rec := &recorder{}
	pl := pipeline.New(renderer, governor.DefaultLimits(), rec)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "secret.pdf", Data: []byte("locked")},
	}, 1.0)
	require.ErrorIs(t, err, pipeline.ErrBatchEmpty)
	require.Nil(t, result)

	require.Equal(t, []signal{{kind: "skipped:encrypted", name: "secret.pdf"}}, rec.signals)
	require.Equal(t, 1, rec.batchEmpty)
}

func TestRunPageFailureIsIsolated(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"doc1": {pages: []pageSpec{smallPage(), {width: 100, height: 100, failRaster: true}, smallPage()}},
	}}
	rec := &recorder{}
	pl := pipeline.New(renderer, governor.DefaultLimits(), rec)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "flaky.pdf", Data: []byte("doc1")},
	}, 1.0)
	require.NoError(t, err)

	// Pages 1 and 3 complete; page 2 fails alone.
	require.Equal(t, 10, result.Entries)
	require.Equal(t, 15, result.TotalSteps)
	require.Equal(t, 10, result.CompletedSteps)
	require.Contains(t, rec.signals, signal{kind: "page-failed", name: "flaky.pdf", n: 2})

	names := entryNames(t, result.Archive)
	require.Contains(t, names, "common/flaky.pdf_p1.png")
	require.Contains(t, names, "common/flaky.pdf_p3.png")
	require.NotContains(t, names, "common/flaky.pdf_p2.png")
}

func TestRunSkipsBadExtensionAndUnreadable(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"good": {pages: []pageSpec{smallPage()}},
	}}
	rec := &recorder{}
	pl := pipeline.New(renderer, governor.DefaultLimits(), rec)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "image.png", Data: []byte("good")},
		{Name: "broken.pdf", Data: []byte("garbage")},
		{Name: "fine.pdf", Data: []byte("good")},
	}, 1.0)
	require.NoError(t, err)

	require.Equal(t, 5, result.Entries)
	require.Contains(t, rec.signals, signal{kind: "skipped:bad-extension", name: "image.png"})
	require.Contains(t, rec.signals, signal{kind: "skipped:unreadable", name: "broken.pdf"})
}

func TestRunEnforcesFileCap(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"good": {pages: []pageSpec{smallPage()}},
	}}
	rec := &recorder{}
	limits := governor.DefaultLimits()
	limits.MaxFiles = 1
	pl := pipeline.New(renderer, limits, rec)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "a.pdf", Data: []byte("good")},
		{Name: "b.pdf", Data: []byte("good")},
	}, 1.0)
	require.NoError(t, err)

	require.Equal(t, 5, result.Entries)
	require.Contains(t, rec.signals, signal{kind: "skipped:file-limit", name: "b.pdf"})
}

func TestRunEnforcesPageCap(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"long": {pages: []pageSpec{smallPage(), smallPage(), smallPage()}},
	}}
	rec := &recorder{}
	limits := governor.DefaultLimits()
	limits.MaxPagesPerFile = 2
	pl := pipeline.New(renderer, limits, rec)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "long.pdf", Data: []byte("long")},
	}, 1.0)
	require.NoError(t, err)

	require.Equal(t, 10, result.Entries)
	require.Equal(t, 10, result.TotalSteps)
	require.Contains(t, rec.signals, signal{kind: "truncated", name: "long.pdf", n: 2})
}

func TestRunReducesScaleForOversizedPage(t *testing.T) {
	spec := &docSpec{pages: []pageSpec{{width: 2000, height: 2000}}}
	renderer := &fakeRenderer{docs: map[string]*docSpec{"big": spec}}
	limits := governor.DefaultLimits()
	limits.MaxPixelsPerPage = 1_000_000
	pl := pipeline.New(renderer, limits, nil)

	_, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "big.pdf", Data: []byte("big")},
	}, 1.0)
	require.NoError(t, err)
	require.InDelta(t, 0.5, spec.pages[0].lastScale, 1e-9)
}

func TestRunClosesEveryDocumentHandle(t *testing.T) {
	good := &docSpec{pages: []pageSpec{smallPage()}}
	flaky := &docSpec{pages: []pageSpec{{width: 10, height: 10, failRaster: true}}}
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"good":  good,
		"flaky": flaky,
	}}
	pl := pipeline.New(renderer, governor.DefaultLimits(), nil)

	_, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "good.pdf", Data: []byte("good")},
		{Name: "flaky.pdf", Data: []byte("flaky")},
	}, 1.0)
	require.NoError(t, err)

	// One open/close pair for counting, one for processing.
	require.Equal(t, good.opens, good.closes)
	require.Equal(t, flaky.opens, flaky.closes)
	require.Equal(t, 2, good.opens)
	require.Equal(t, 2, flaky.opens)
}

func TestRunHonorsCancellation(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"good": {pages: []pageSpec{smallPage()}},
	}}
	pl := pipeline.New(renderer, governor.DefaultLimits(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pl.Run(ctx, []pipeline.Input{{Name: "a.pdf", Data: []byte("good")}}, 1.0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunClampsRequestedScale(t *testing.T) {
	spec := &docSpec{pages: []pageSpec{smallPage()}}
	renderer := &fakeRenderer{docs: map[string]*docSpec{"good": spec}}
	pl := pipeline.New(renderer, governor.DefaultLimits(), nil)

	_, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "a.pdf", Data: []byte("good")},
	}, 0.0)
	require.NoError(t, err)
	require.InDelta(t, governor.MinScale, spec.pages[0].lastScale, 1e-9)
}

func TestRunArchiveEntriesAreValidPNGs(t *testing.T) {
	renderer := &fakeRenderer{docs: map[string]*docSpec{
		"doc1": {pages: []pageSpec{smallPage()}},
	}}
	pl := pipeline.New(renderer, governor.DefaultLimits(), nil)

	result, err := pl.Run(context.Background(), []pipeline.Input{
		{Name: "a.pdf", Data: []byte("doc1")},
	}, 1.0)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(result.Archive), int64(len(result.Archive)))
	require.NoError(t, err)
	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		head := make([]byte, 4)
		_, err = io.ReadFull(rc, head)
		require.NoError(t, err)
		require.Equal(t, pngMagic, head, "entry %s is not a PNG", f.Name)
		rc.Close()
	}
}
