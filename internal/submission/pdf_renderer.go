package submission

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// pageLayout holds print dimensions in inches.
type pageLayout struct {
	width, height    float64
	marginX, marginY float64
}

// a4Layout is the journal default.
var a4Layout = pageLayout{
	width:   8.27,
	height:  11.69,
	marginX: 0.6,
	marginY: 0.75,
}

// ChromiumPDFRenderer prints manuscript HTML to PDF through headless
// Chromium.
type ChromiumPDFRenderer struct {
	chromePath string
	layout     pageLayout
	timeout    time.Duration
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{
		chromePath: detectChromePath(),
		layout:     a4Layout,
		timeout:    30 * time.Second,
	}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, title, markdown string) ([]byte, error) {
	htmlDoc, err := buildHTML(title, markdown)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	taskCtx, taskCancel := r.newBrowserContext(ctx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := r.printParams().Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// newBrowserContext wires a headless allocator; the returned cancel tears
// down both the tab and the browser.
func (r *ChromiumPDFRenderer) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

func (r *ChromiumPDFRenderer) printParams() *page.PrintToPDFParams {
	footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
		`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<div></div>`).
		WithFooterTemplate(footer).
		WithPaperWidth(r.layout.width).
		WithPaperHeight(r.layout.height).
		WithMarginTop(r.layout.marginY).
		WithMarginBottom(r.layout.marginY).
		WithMarginLeft(r.layout.marginX).
		WithMarginRight(r.layout.marginX)
}

func buildHTML(title, markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>" + escapeTitle(title) + "</title>" +
		"<style>" +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		"body{font-family:Georgia,'Times New Roman',serif;font-size:12pt;line-height:1.8;color:#1c1917;max-width:720px;margin:0 auto;} " +
		"h1{font-size:18pt;text-align:center;margin-bottom:0.2rem;} " +
		"h2{font-size:13pt;margin-top:1.6rem;} " +
		"p{text-align:justify;} blockquote{margin-left:2rem;font-size:11pt;} " +
		"em{font-style:italic;} " +
		"@media print{ @page{size:auto;margin:18mm;} }" +
		"</style></head><body>" + content.String() + "</body></html>", nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
