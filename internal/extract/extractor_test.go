package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

const casePage = `<html><body>
<table class="case_details_table">
  <tr><td>Case Type</td><td> CS - Civil Suit </td><td>Filing Number</td><td>123/2021</td></tr>
  <tr><td>Registration Number</td><td>456/2021</td></tr>
</table>
<table class="case_status_table">
  <tr><td>First Hearing Date</td><td>01st March 2021</td></tr>
  <tr><td>Case Stage</td><td>Evidence</td></tr>
</table>
<table class="Petitioner_Advocate_table"><tr><td>1) Ram Kumar Advocate- S Rao</td></tr></table>
<table class="Respondent_Advocate_table"><tr><td>1) State</td></tr></table>
<table class="acts_table">
  <tr><th>Under Act(s)</th><th>Under Section(s)</th></tr>
  <tr><td>Indian Penal Code</td><td>420</td></tr>
</table>
<table class="FIR_details_table">
  <tr><td>Police Station</td><td>Central</td></tr>
  <tr><td>FIR Number</td><td>77</td></tr>
</table>
<div id="history_cnr">
  <table class="history_table">
    <tr><th>Judge</th><th>Business on Date</th><th>Hearing Date</th><th>Purpose</th></tr>
    <tr><td>Court 1</td><td>01-03-2021</td><td>15-04-2021</td><td>Appearance</td></tr>
    <tr><td>Court 1</td><td>15-04-2021</td><td>20-05-2021</td><td>Evidence</td></tr>
  </table>
  <table class="order_table">
    <tr><td>Order Number</td><td>Order Date</td><td>Order Details</td></tr>
    <tr><td>1</td><td>15-04-2021</td><td><a href="#">Copy of order</a></td></tr>
    <tr><td>2</td><td>20-05-2021</td><td><a href="#">Copy of order</a></td></tr>
  </table>
  <table class="order_table">
    <tr><th>Order Number</th><th>Order Date</th><th>Order Details</th></tr>
    <tr><td>1</td><td>01-06-2021</td><td><a href="#">Copy of judgment</a></td></tr>
  </table>
</div>
</body></html>`

func TestParseReadsEverySection(t *testing.T) {
	t.Parallel()

	rec, _, err := Parse(casePage)
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"Case Type":           "CS - Civil Suit",
		"Filing Number":       "123/2021",
		"Registration Number": "456/2021",
	}, rec.Details)
	require.Equal(t, [][]string{{"First Hearing Date", "01st March 2021"}, {"Case Stage", "Evidence"}}, rec.Status)
	require.Equal(t, [][]string{{"1) Ram Kumar Advocate- S Rao"}}, rec.Petitioners)
	require.Equal(t, [][]string{{"1) State"}}, rec.Respondents)
	require.Equal(t, [][]string{{"Indian Penal Code", "420"}}, rec.Acts)
	require.Equal(t, map[string]string{"Police Station": "Central", "FIR Number": "77"}, rec.FIR)
	require.Len(t, rec.History, 2)
	require.Empty(t, rec.Transfers)
	require.NotNil(t, rec.Transfers)
	require.Equal(t, []string{"15-04-2021", "20-05-2021"}, HistoryDates(rec))
}

func TestParseListsOrdersByKind(t *testing.T) {
	t.Parallel()

	_, orders, err := Parse(casePage)
	require.NoError(t, err)

	// The interim header uses td cells and is still skipped.
	require.Equal(t, []cnr.OrderRow{
		{Kind: cnr.InterimOrder, Index: 1, Number: "1", Date: "15-04-2021"},
		{Kind: cnr.InterimOrder, Index: 2, Number: "2", Date: "20-05-2021"},
		{Kind: cnr.FinalOrder, Index: 1, Number: "1", Date: "01-06-2021"},
	}, orders)
}

func TestParseSingleOrderTableIsInterimOnly(t *testing.T) {
	t.Parallel()

	html := `<div id="history_cnr"><table class="order_table">
<tr><th>No</th><th>Date</th><th>Details</th></tr>
<tr><td>1</td><td>10-01-2022</td><td><a>order</a></td></tr>
</table></div>`
	_, orders, err := Parse(html)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, cnr.InterimOrder, orders[0].Kind)
}

func TestParseMissingTablesYieldEmptySections(t *testing.T) {
	t.Parallel()

	rec, orders, err := Parse(`<html><body><p>nothing here</p></body></html>`)
	require.NoError(t, err)
	require.Empty(t, rec.Details)
	require.NotNil(t, rec.Details)
	require.Empty(t, rec.Status)
	require.Empty(t, rec.FIR)
	require.Empty(t, orders)
}

func TestParseOddDetailCellIsDropped(t *testing.T) {
	t.Parallel()

	rec, _, err := Parse(`<table class="case_details_table"><tr><td>A</td><td>1</td><td>B</td></tr></table>`)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"A": "1"}, rec.Details)
}

func TestOrderTableFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, OrderTable{Selector: "table.order_table"}, OrderTableFor(cnr.InterimOrder))
	require.Equal(t, OrderTable{Selector: "#history_cnr table.order_table", Last: true}, OrderTableFor(cnr.FinalOrder))
}

func TestExtractReadsFromSource(t *testing.T) {
	t.Parallel()

	rec, orders, err := Extract(context.Background(), fakeSource{html: casePage})
	require.NoError(t, err)
	require.NotEmpty(t, rec.Details)
	require.Len(t, orders, 3)

	_, _, err = Extract(context.Background(), fakeSource{err: errors.New("gone")})
	require.ErrorContains(t, err, "read results: gone")
}

// --- fakes ---

type fakeSource struct {
	html string
	err  error
}

func (f fakeSource) ResultsHTML(context.Context) (string, error) {
	return f.html, f.err
}
