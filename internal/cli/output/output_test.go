package output

import (
	"bytes"
	"strings"
	"testing"
)

type linkRow struct {
	PeerID    uint64 `json:"peer_id"`
	Direction string `json:"direction"`
}

type linkRows []linkRow

func (r linkRows) Table() *Table {
	t := NewTable("PEER", "DIRECTION")
	for _, l := range r {
		t.AddRow(strings.Repeat("x", int(l.PeerID)), l.Direction)
	}
	return t
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "json", "yaml"} {
		if f, err := ParseFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestTable_Render(t *testing.T) {
	tbl := NewTable("PEER", "STATE")
	tbl.AddRow("1", "connected")
	tbl.AddRow("12", "")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "PEER  STATE\n1     connected\n12    -\n"
	if buf.String() != want {
		t.Errorf("Render() =\n%q\nwant\n%q", buf.String(), want)
	}

	buf.Reset()
	tbl.RenderWithOptions(&buf, true)
	if strings.Contains(buf.String(), "PEER") {
		t.Error("headers rendered with noHeaders")
	}
}

func TestFormatters(t *testing.T) {
	data := linkRows{{PeerID: 2, Direction: "inbound"}}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatTable, []string{"PEER", "xx", "inbound"}},
		{FormatJSON, []string{`"peer_id": 2`, `"direction": "inbound"`}},
		{FormatYAML, []string{"- direction: inbound", "  peer_id: 2"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).Format(&buf, data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestTableFormatter_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, map[string]int{"links": 3}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"links": 3`) {
		t.Errorf("fallback output = %s", buf.String())
	}
}
