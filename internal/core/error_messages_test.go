package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "structural mismatch by kind",
			err:         newError(ErrStructuralMismatch, "row 3"),
			wantCode:    "REP001",
			wantMessage: "The repaired row does not fit the table's columns",
		},
		{
			name:        "out of bounds wrapped twice",
			err:         fmt.Errorf("repair: %w", newError(ErrOutOfBounds, "row 1")),
			wantCode:    "REP002",
			wantMessage: "The shift runs past the last column",
		},
		{
			name:        "ambiguous repair",
			err:         newError(ErrAmbiguousRepair, "row 4"),
			wantCode:    "REP003",
			wantMessage: "Could not tell which column holds the split value",
		},
		{
			name:        "index not found",
			err:         newError(ErrIndexNotFound, "row index 99"),
			wantCode:    "INS001",
			wantMessage: "Row index not found",
		},
		{
			name:        "column not found",
			err:         newError(ErrColumnNotFound, `column "x"`),
			wantCode:    "INS002",
			wantMessage: "Column not found",
		},
		{
			name:        "file too large by message",
			err:         errors.New("file too large: 200MB exceeds limit"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds maximum size limit",
		},
		{
			name:        "csv parse error by message",
			err:         errors.New("record on line 4: parse error on line 4, column 7: bare \" in non-quoted-field"),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:        "table not found",
			err:         fmt.Errorf("get %s: %w", "abc", ErrTableNotFound),
			wantCode:    "SES001",
			wantMessage: "Table not found",
		},
		{
			name:        "context canceled",
			err:         context.Canceled,
			wantCode:    "SES004",
			wantMessage: "Operation was cancelled",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError().Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError().Message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := newError(ErrDelimiterNotFound, "row 2")
	result := FormatUserError(err)

	expected := "The breakdown column does not contain the delimiter (Code: REP004). Check the delimiter and the breakdown column for this row"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known kind is user facing",
			err:  ErrTooManyTables,
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := newError(ErrIndexNotFound, "row index 7")
		userErr := NewUserError(techErr)

		if userErr.Error() != "Row index not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrIndexNotFound) {
			t.Error("Unwrap() should expose the error kind")
		}
	})
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{newError(ErrAmbiguousRepair, "x"), "ambiguous_repair"},
		{newError(ErrPatternParse, "x"), "pattern_parse_error"},
		{fmt.Errorf("open: %w", ErrTableNotFound), "table_not_found"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "cancelled"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := KindName(tt.err); got != tt.want {
			t.Errorf("KindName(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
