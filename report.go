package beast2

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

//WriteOperatorReport renders the end-of-run acceptance summary for a set of
//operators as a table
func WriteOperatorReport(w io.Writer, ops []Operator) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Operator", "Tuning", "#Accept", "#Reject", "Total", "Ratio", "Suggestion"})
	for _, op := range ops {
		st := op.Stats()
		total := st.ACC + st.REJ
		t.AppendRow(table.Row{
			st.NAME,
			fmt.Sprintf("%.5f", op.CoercableValue()),
			st.ACC,
			st.REJ,
			total,
			strconv.FormatFloat(st.Ratio(), 'f', 3, 64),
			op.PerformanceSuggestion(),
		})
	}
	t.Render()
}
