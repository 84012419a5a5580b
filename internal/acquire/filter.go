package acquire

import (
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// historyDateColumn is the hearing date column of a case history row.
const historyDateColumn = 2

// FilterHistory keeps history rows whose hearing date the cutoff admits.
// Without a cutoff every row is kept.
func FilterHistory(rows [][]string, cutoff cnr.Cutoff) [][]string {
	if cutoff.IsZero() {
		return rows
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > historyDateColumn && cutoff.Admits(row[historyDateColumn]) {
			out = append(out, row)
		}
	}
	return out
}

// FilterOrders keeps order rows whose order date the cutoff admits. It runs
// before any download, so excluded orders are never fetched.
func FilterOrders(rows []cnr.OrderRow, cutoff cnr.Cutoff) []cnr.OrderRow {
	if cutoff.IsZero() {
		return rows
	}
	out := make([]cnr.OrderRow, 0, len(rows))
	for _, row := range rows {
		if cutoff.Admits(row.Date) {
			out = append(out, row)
		}
	}
	return out
}
