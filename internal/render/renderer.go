// Package render turns a finished estimate into deliverable documents: an
// Excel workbook with the full cost breakdown and an HTML commercial
// proposal for the customer.
package render

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
	"github.com/xuri/excelize/v2"
)

// Renderer writes estimate documents into a target directory.
type Renderer struct {
	store   *catalog.Store
	dir     string
	company Company
	tpl     *template.Template
	out     io.Writer
	now     func() time.Time
}

// Opts holds parameters for creating a Renderer.
type Opts struct {
	Store   *catalog.Store
	Dir     string // output directory, created if missing
	Company Company
	Out     io.Writer // defaults to os.Stdout
	// Now overrides the clock in tests.
	Now func() time.Time
}

// New creates a Renderer.
func New(opts Opts) (*Renderer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("render: catalog store is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("render: output directory is required")
	}
	tpl, err := template.New("proposal").Parse(proposalTemplate)
	if err != nil {
		return nil, fmt.Errorf("render: parse proposal template: %w", err)
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Renderer{
		store:   opts.Store,
		dir:     opts.Dir,
		company: opts.Company,
		tpl:     tpl,
		out:     out,
		now:     now,
	}, nil
}

// Render writes the estimate workbook and the commercial proposal and
// returns their paths, workbook first.
func (r *Renderer) Render(userKey string, est *estimate.Estimate) ([]string, error) {
	if len(est.Sheets) == 0 {
		return nil, fmt.Errorf("render: estimate has no sheets")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: output dir: %w", err)
	}

	stamp := r.now().Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", sanitize(userKey), stamp)

	xlsxPath := filepath.Join(r.dir, "smeta_"+base+".xlsx")
	f := excelize.NewFile()
	defer f.Close()
	if err := buildWorkbook(f, est); err != nil {
		return nil, err
	}
	if err := f.SaveAs(xlsxPath); err != nil {
		return nil, fmt.Errorf("render: save workbook: %w", err)
	}

	proposalPath := filepath.Join(r.dir, "proposal_"+base+".html")
	err := writeProposal(r.tpl, proposalPath, est, r.company, r.isProduct, r.now())
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(r.out, "render: documents written [user=%s xlsx=%s proposal=%s]\n",
		userKey, xlsxPath, proposalPath)
	return []string{xlsxPath, proposalPath}, nil
}

// isProduct reports whether a line item is a fabricated product, i.e. its
// category maps to the templates section of the catalog.
func (r *Renderer) isProduct(item estimate.LineItem) bool {
	key, ok := r.store.CategoryKey(item.Category)
	return ok && key == catalog.SectionTemplates
}

// sanitize maps a user key to something safe in a file name.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
