package render

import (
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/velikov/smetabot/internal/estimate"
)

// proposalTemplate is the commercial proposal page. It lists fabricated
// products only; raw materials and labor stay in the estimate workbook.
const proposalTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Commercial proposal</title>
<style>
  body { font-family: Calibri, sans-serif; font-size: 14px; margin: 40px; }
  h1, h2 { color: #003366; text-align: center; }
  .date { text-align: right; font-size: 12px; }
  table { border-collapse: collapse; margin: 24px auto; min-width: 70%; }
  th, td { border: 1px solid #888; padding: 6px 12px; text-align: center; }
  th { background: #d3d3d3; color: #003366; }
  td.name { text-align: left; }
  tr.total td { font-weight: bold; background: #a3bffa; }
  .contacts { margin-top: 36px; text-align: center; font-size: 12px; color: #555; }
</style>
</head>
<body>
<h1>{{.Company.Name}}</h1>
<h2>Commercial proposal</h2>
<p class="date">Date: {{.Date}}</p>
<table>
  <tr><th>#</th><th>Product</th><th>Qty</th><th>Price per unit</th><th>Total</th></tr>
  {{- range .Rows}}
  <tr>
    <td>{{.Index}}</td>
    <td class="name">{{.Name}}</td>
    <td>{{.Quantity}}</td>
    <td>{{.PricePerUnit}}</td>
    <td>{{.Total}}</td>
  </tr>
  {{- end}}
  <tr class="total"><td></td><td>Total</td><td></td><td></td><td>{{.Total}}</td></tr>
</table>
<div class="contacts">{{.Company.Phone}}{{if .Company.Email}} · {{.Company.Email}}{{end}}</div>
</body>
</html>
`

// Company identifies the business issuing proposals.
type Company struct {
	Name  string
	Phone string
	Email string
}

type proposalRow struct {
	Index        int
	Name         string
	Quantity     string
	PricePerUnit string
	Total        string
}

type proposalData struct {
	Company Company
	Date    string
	Rows    []proposalRow
	Total   string
}

// writeProposal renders the proposal for an estimate to path. isProduct
// decides which line items are customer-facing products; when the estimate
// holds none, every line item is listed so the proposal is never empty.
func writeProposal(tpl *template.Template, path string, est *estimate.Estimate, company Company, isProduct func(item estimate.LineItem) bool, now time.Time) error {
	var rows []proposalRow
	var total float64
	add := func(item estimate.LineItem) {
		rows = append(rows, proposalRow{
			Index:        len(rows) + 1,
			Name:         item.Name,
			Quantity:     estimate.FormatNumber(item.Quantity),
			PricePerUnit: estimate.FormatNumber(item.PricePerUnit),
			Total:        estimate.FormatNumber(item.TotalCost),
		})
		total += item.TotalCost
	}

	for _, sheet := range est.Sheets {
		for _, item := range est.Products[sheet] {
			if isProduct(item) {
				add(item)
			}
		}
	}
	if len(rows) == 0 {
		for _, sheet := range est.Sheets {
			for _, item := range est.Products[sheet] {
				add(item)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: create proposal: %w", err)
	}
	defer f.Close()

	data := proposalData{
		Company: company,
		Date:    now.Format("02.01.2006"),
		Rows:    rows,
		Total:   estimate.FormatNumber(total),
	}
	if err := tpl.Execute(f, data); err != nil {
		return fmt.Errorf("render: execute proposal: %w", err)
	}
	return f.Close()
}
