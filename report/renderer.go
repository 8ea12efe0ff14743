package report

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/medconsult-liberia/medconsult/internal/reporting"
	"github.com/medconsult-liberia/medconsult/web"
)

// PDFClient exposes the subset of the Gotenberg client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns an assembled report into HTML and PDF.
type Renderer struct {
	tpl    *template.Template
	client PDFClient
}

// NewRenderer parses the report template and wires the PDF client.
func NewRenderer(client PDFClient) (*Renderer, error) {
	if client == nil {
		return nil, errors.New("report renderer: pdf client required")
	}
	printer := message.NewPrinter(language.AmericanEnglish)
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04 MST")
		},
		"money": func(d decimal.Decimal) string {
			return FormatMoney(printer, d)
		},
	}
	tpl, err := template.New("financial_report.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/financial_report.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl, client: client}, nil
}

// FormatMoney renders d as US dollars with thousands separators, e.g. "-$1,250.50".
func FormatMoney(p *message.Printer, d decimal.Decimal) string {
	f, _ := d.Round(2).Abs().Float64()
	s := p.Sprintf("$%.2f", f)
	if d.Round(2).IsNegative() {
		return "-" + s
	}
	return s
}

// HTML executes the template for r.
func (r *Renderer) HTML(rep reporting.Report) (string, error) {
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, rep); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderReport produces the PDF bytes for rep.
func (r *Renderer) RenderReport(ctx context.Context, rep reporting.Report) ([]byte, error) {
	if r == nil || r.tpl == nil || r.client == nil {
		return nil, errors.New("report renderer not initialised")
	}
	html, err := r.HTML(rep)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}
