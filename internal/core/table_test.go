package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewTable(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		wantErr error
	}{
		{"ok", []string{"a", "b"}, nil},
		{"empty", nil, ErrEmptyTable},
		{"duplicate", []string{"a", "b", "a"}, ErrDuplicateColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.columns)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTable error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_AppendRowWidth(t *testing.T) {
	tbl, _ := NewTable([]string{"a", "b"})
	if err := tbl.AppendRow(Strs("x")); !errors.Is(err, ErrStructuralMismatch) {
		t.Errorf("short row error = %v, want ErrStructuralMismatch", err)
	}
	if err := tbl.AppendRow(Strs("x", "y")); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}
}

func TestTable_SetAndCell(t *testing.T) {
	tbl := MustTable([]string{"a", "b"}, Strs("x", "y"))

	if err := tbl.Set(0, "b", Null()); err != nil {
		t.Fatal(err)
	}
	c, err := tbl.Cell(0, "b")
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsNull() {
		t.Errorf("cell = %+v, want null", c)
	}
	if _, err := tbl.Cell(0, "z"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("unknown column error = %v", err)
	}
	if err := tbl.Set(5, "a", Str("q")); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("unknown index error = %v", err)
	}
}

func TestTable_CloneIsIndependent(t *testing.T) {
	tbl := MustTable([]string{"a"}, Strs("x"))
	c := tbl.Clone()
	_ = c.Set(0, "a", Str("changed"))

	if got, _ := tbl.Cell(0, "a"); got.String != "x" {
		t.Errorf("original changed to %q", got.String)
	}
}

func TestTable_RowIsCopy(t *testing.T) {
	tbl := MustTable([]string{"a"}, Strs("x"))
	r, _ := tbl.Row(0)
	r[0] = Str("mutated")

	if got, _ := tbl.Cell(0, "a"); got.String != "x" {
		t.Errorf("Row exposed internal storage: %q", got.String)
	}
}

func TestCellJSON(t *testing.T) {
	in := []Cell{Str("a"), Str(""), Null()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["a","",null]` {
		t.Errorf("Marshal = %s", data)
	}

	var out []Cell
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestTableJSON(t *testing.T) {
	tbl := MustTable([]string{"a", "b"}, []Cell{Str("x"), Null()})
	data, err := json.Marshal(tbl)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"columns":["a","b"],"rows":[{"index":0,"cells":["x",null]}]}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}
