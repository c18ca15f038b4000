package core

// # Error Codes Reference
//
// User-facing messages carry a code that can be quoted to support.
//
// # Repair Errors (REP001-REP099)
//
//	REP001 - Structural mismatch: the repaired row would not fit the header
//	REP002 - Out of bounds: the shift runs past the last column
//	REP003 - Ambiguous repair: more than one column (or none) looks split
//	REP004 - Delimiter not found: the breakdown cell holds no delimiter
//	REP005 - Invalid request: the repair request is incomplete
//
// # Inspection Errors (INS001-INS099)
//
//	INS001 - Index not found
//	INS002 - Column not found
//	INS003 - Pattern error: a column could not be searched
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Empty file or header
//	FILE004 - Duplicate header column
//	FILE005 - Unsupported file format
//	FILE006 - Invalid spreadsheet
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Table not found (expired or deleted)
//	SES002 - Too many open tables
//	SES003 - Server busy (ingest slots exhausted)
//	SES004 - Operation cancelled
//
// # Journal Errors (JRN001-JRN099)
//
//	JRN001 - Journal unavailable
//
// ERR000 is the fallback for anything else.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage contains user-friendly error information.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// errorPattern maps an error kind or a message fragment to a user message.
// kind is tried with errors.Is first; pattern is a case-insensitive
// substring match used for errors from outside this package.
type errorPattern struct {
	kind    error
	pattern string
	msg     UserMessage
}

// Session-level errors. Defined here so every layer maps them the same way.
var (
	ErrTableNotFound   = errors.New("table not found")
	ErrTooManyTables   = errors.New("too many open tables")
	ErrIngestBusy      = errors.New("too many concurrent ingests")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedFile = errors.New("unsupported file format")
)

// errorPatterns is ordered: the first match wins, so specific entries come
// before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Repair (REP)
	// =========================================================================
	{
		kind: ErrStructuralMismatch,
		msg: UserMessage{
			Message: "The repaired row does not fit the table's columns",
			Action:  "Check the column names and the number of steps",
			Code:    "REP001",
		},
	},
	{
		kind: ErrOutOfBounds,
		msg: UserMessage{
			Message: "The shift runs past the last column",
			Action:  "Use fewer steps or pick a breakdown column further left",
			Code:    "REP002",
		},
	},
	{
		kind: ErrAmbiguousRepair,
		msg: UserMessage{
			Message: "Could not tell which column holds the split value",
			Action:  "Repair the row manually with split_right or stretch_by_index",
			Code:    "REP003",
		},
	},
	{
		kind: ErrDelimiterNotFound,
		msg: UserMessage{
			Message: "The breakdown column does not contain the delimiter",
			Action:  "Check the delimiter and the breakdown column for this row",
			Code:    "REP004",
		},
	},
	{
		kind: ErrInvalidRequest,
		msg: UserMessage{
			Message: "The repair request is incomplete",
			Action:  "Check the operation name and its required fields",
			Code:    "REP005",
		},
	},

	// =========================================================================
	// Inspection (INS)
	// =========================================================================
	{
		kind: ErrIndexNotFound,
		msg: UserMessage{
			Message: "Row index not found",
			Action:  "Refresh the diagnostics; row indices are renumbered after each repair",
			Code:    "INS001",
		},
	},
	{
		kind: ErrColumnNotFound,
		msg: UserMessage{
			Message: "Column not found",
			Action:  "Verify the column name matches the table header exactly",
			Code:    "INS002",
		},
	},
	{
		kind: ErrPatternParse,
		msg: UserMessage{
			Message: "A column could not be searched with the given pattern",
			Action:  "Check the pattern syntax and column names",
			Code:    "INS003",
		},
	},

	// =========================================================================
	// File (FILE)
	// =========================================================================
	{
		kind:    ErrFileTooLarge,
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse error on line",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check the delimiter and quoting of the file",
			Code:    "FILE002",
		},
	},
	{
		kind: ErrEmptyTable,
		msg: UserMessage{
			Message: "File has no header or no columns",
			Action:  "Upload a file with at least one column",
			Code:    "FILE003",
		},
	},
	{
		kind: ErrDuplicateColumn,
		msg: UserMessage{
			Message: "File header contains a duplicate column name",
			Action:  "Rename the duplicate column or upload without a header",
			Code:    "FILE004",
		},
	},
	{
		kind: ErrUnsupportedFile,
		msg: UserMessage{
			Message: "Unsupported file format",
			Action:  "Upload a .csv, .txt or .xlsx file",
			Code:    "FILE005",
		},
	},
	{
		pattern: "zip: not a valid zip file",
		msg: UserMessage{
			Message: "Spreadsheet could not be opened",
			Action:  "Save the workbook as .xlsx and try again",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Session (SES)
	// =========================================================================
	{
		kind: ErrTableNotFound,
		msg: UserMessage{
			Message: "Table not found",
			Action:  "The table may have expired; upload the file again",
			Code:    "SES001",
		},
	},
	{
		kind: ErrTooManyTables,
		msg: UserMessage{
			Message: "Too many tables are open",
			Action:  "Delete a table you no longer need and try again",
			Code:    "SES002",
		},
	},
	{
		kind: ErrIngestBusy,
		msg: UserMessage{
			Message: "Server is busy processing other files",
			Action:  "Please wait a moment before trying again",
			Code:    "SES003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Operation was cancelled",
			Action:  "Start the operation again if needed",
			Code:    "SES004",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again with fewer rows",
			Code:    "SES004",
		},
	},

	// =========================================================================
	// Journal (JRN)
	// =========================================================================
	{
		pattern: "journal",
		msg: UserMessage{
			Message: "The repair journal is unavailable",
			Action:  "The repair was applied; check the server logs for the journal error",
			Code:    "JRN001",
		},
	},
}

// defaultMessage is returned when nothing matches. Check the logs for the
// technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Error kinds are matched with errors.Is, then message fragments
// case-insensitively. The first match wins.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, ep := range errorPatterns {
		if ep.kind != nil && errors.Is(err, ep.kind) {
			return ep.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if ep.pattern != "" && strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError returns "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
