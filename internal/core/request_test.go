package core

import (
	"errors"
	"testing"
)

func TestRepairRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     RepairRequest
		wantErr bool
	}{
		{"unknown op", RepairRequest{Op: "fold"}, true},
		{"merge ok", RepairRequest{Op: OpMergeAdjacent, ColumnA: "a", ColumnB: "b"}, false},
		{"merge missing column", RepairRequest{Op: OpMergeNoShift, ColumnA: "a"}, true},
		{"split needs columns", RepairRequest{Op: OpSplitRight, BreakdownColumn: "b", Delimiter: ","}, true},
		{"split ok", RepairRequest{Op: OpSplitRight, Columns: []string{"b"}, BreakdownColumn: "b", Delimiter: ","}, false},
		{"stretch needs delimiter", RepairRequest{Op: OpStretchByIndex, BreakdownColumn: "b"}, true},
		{"share ok", RepairRequest{Op: OpShareLeft, BreakdownColumn: "b", LeftColumn: "a", Delimiter: ","}, false},
		{"share needs left", RepairRequest{Op: OpShareLeft, BreakdownColumn: "b", Delimiter: ","}, true},
		{"auto ok without indices", RepairRequest{Op: OpAutoStretch, Delimiter: ","}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error %v is not ErrInvalidRequest", err)
			}
		})
	}
}
