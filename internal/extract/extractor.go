// Package extract turns the rendered case page into a CaseRecord and the list
// of order rows that carry downloadable documents.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// Table selectors used by the portal's case view.
const (
	detailsTable     = "table.case_details_table"
	statusTable      = "table.case_status_table"
	petitionerTable  = "table.Petitioner_Advocate_table"
	respondentTable  = "table.Respondent_Advocate_table"
	actsTable        = "table.acts_table"
	firTable         = "table.FIR_details_table"
	historyTable     = "table.history_table"
	transferTable    = "table.transfer_table"
	orderTable       = "table.order_table"
	finalOrderTable  = "#history_cnr table.order_table"
	historyDateIndex = 2
)

// OrderTable describes where the listing for one order kind lives: the first
// or last element matching Selector.
type OrderTable struct {
	Selector string
	Last     bool
}

// OrderTableFor returns the table that lists orders of the given kind.
func OrderTableFor(kind cnr.OrderKind) OrderTable {
	if kind == cnr.FinalOrder {
		return OrderTable{Selector: finalOrderTable, Last: true}
	}
	return OrderTable{Selector: orderTable}
}

// Source exposes the rendered results markup.
type Source interface {
	ResultsHTML(ctx context.Context) (string, error)
}

// Extract reads the current page from src and parses it.
func Extract(ctx context.Context, src Source) (cnr.CaseRecord, []cnr.OrderRow, error) {
	html, err := src.ResultsHTML(ctx)
	if err != nil {
		return cnr.CaseRecord{}, nil, fmt.Errorf("read results: %w", err)
	}
	return Parse(html)
}

// Parse builds the record sections and order rows from results markup.
// Missing tables yield empty sections rather than errors.
func Parse(html string) (cnr.CaseRecord, []cnr.OrderRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cnr.CaseRecord{}, nil, fmt.Errorf("parse results: %w", err)
	}

	rec := cnr.CaseRecord{
		Details:     pairs(doc.Find(detailsTable).First()),
		Status:      rows(doc.Find(statusTable).First()),
		Petitioners: rows(doc.Find(petitionerTable).First()),
		Respondents: rows(doc.Find(respondentTable).First()),
		Acts:        rows(doc.Find(actsTable).First()),
		FIR:         keyed(doc.Find(firTable).First()),
		History:     rows(doc.Find(historyTable).First()),
		Transfers:   rows(doc.Find(transferTable).First()),
	}

	interim := doc.Find(orderTable).First()
	orders := orderRows(interim, cnr.InterimOrder)

	final := doc.Find(finalOrderTable).Last()
	if final.Length() > 0 && !final.IsSelection(interim) {
		orders = append(orders, orderRows(final, cnr.FinalOrder)...)
	}
	return rec, orders, nil
}

// HistoryDates returns the hearing date column of the case history.
func HistoryDates(rec cnr.CaseRecord) []string {
	out := make([]string, 0, len(rec.History))
	for _, row := range rec.History {
		if len(row) > historyDateIndex {
			out = append(out, row[historyDateIndex])
		}
	}
	return out
}

func cellTexts(row *goquery.Selection) []string {
	cells := row.Find("td")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, td *goquery.Selection) {
		out = append(out, strings.TrimSpace(td.Text()))
	})
	return out
}

// rows reads every tr with at least one td cell. Header rows built from th
// cells are skipped.
func rows(table *goquery.Selection) [][]string {
	out := [][]string{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if cells := cellTexts(tr); len(cells) > 0 {
			out = append(out, cells)
		}
	})
	return out
}

// pairs treats the table's td cells as alternating label and value.
func pairs(table *goquery.Selection) map[string]string {
	out := map[string]string{}
	var cells []string
	table.Find("td").Each(func(_ int, td *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(td.Text()))
	})
	for i := 0; i+1 < len(cells); i += 2 {
		out[cells[i]] = cells[i+1]
	}
	return out
}

// keyed maps the first cell of each row to its second.
func keyed(table *goquery.Selection) map[string]string {
	out := map[string]string{}
	for _, row := range rows(table) {
		if len(row) >= 2 {
			out[row[0]] = row[1]
		}
	}
	return out
}

// orderRows skips the table's first row, which is always the header whether
// it is built from th or td cells.
func orderRows(table *goquery.Selection, kind cnr.OrderKind) []cnr.OrderRow {
	var out []cnr.OrderRow
	index := 0
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		cells := cellTexts(tr)
		if i == 0 || len(cells) == 0 {
			return
		}
		index++
		if len(cells) < 2 {
			return
		}
		out = append(out, cnr.OrderRow{
			Kind:   kind,
			Index:  index,
			Number: cells[0],
			Date:   cells[1],
		})
	})
	return out
}
