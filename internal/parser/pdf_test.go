package parser

import "testing"

func TestLooksLikeTable(t *testing.T) {
	cases := []struct {
		heading, content string
		want             bool
	}{
		{"Table 4: Production by region", "Region\tVolume\nPortugal\t120\n", true},
		{"Narrative", "Revenue increased due to strong demand in the region.", false},
		{"", "Company | Revenue | EBITDA\nAcme | 120 | 30\nBeta | 90 | 22\n", true},
	}
	for _, c := range cases {
		if got := looksLikeTable(c.heading, c.content); got != c.want {
			t.Errorf("looksLikeTable(%q, %q) = %v, want %v", c.heading, c.content, got, c.want)
		}
	}
}

func TestBuildTableHeaderDetection(t *testing.T) {
	s := rawSection{
		Heading:    "Table 1: Variable cost per ton",
		Content:    "Region\tCost\nPortugal\t23.2\nSpain\t24.1\n",
		PageNumber: 46,
		IsTable:    true,
	}
	tbl := buildTable(s)
	if len(tbl.HeaderRows) != 1 {
		t.Fatalf("expected 1 header row, got %d", len(tbl.HeaderRows))
	}
	if tbl.HeaderRows[0][0] != "Region" {
		t.Errorf("unexpected header row: %v", tbl.HeaderRows[0])
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(tbl.Rows))
	}
	if tbl.Rows[0][0] != "Portugal" || tbl.Rows[0][1] != "23.2" {
		t.Errorf("unexpected first data row: %v", tbl.Rows[0])
	}
	if tbl.PageNumber != 46 {
		t.Errorf("expected page 46, got %d", tbl.PageNumber)
	}
}

func TestSplitTableRowPipeDelimited(t *testing.T) {
	cells := splitTableRow("Region | Cost | Unit")
	want := []string{"Region", "Cost", "Unit"}
	if len(cells) != len(want) {
		t.Fatalf("got %v, want %v", cells, want)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d = %q, want %q", i, cells[i], want[i])
		}
	}
}

func TestIsLikelyHeadingNumbered(t *testing.T) {
	if !isLikelyHeading("1.2 Financial Highlights") {
		t.Error("expected numbered heading to be detected")
	}
	if isLikelyHeading("revenue increased by 12% year over year") {
		t.Error("expected narrative sentence not to be a heading")
	}
}
