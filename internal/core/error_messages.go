// Error Codes Reference
//
// Technical errors are mapped to short user-facing messages with a code
// that can be quoted when reporting a problem. Codes are grouped by
// category.
//
// # Store Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A row with this key already exists
//	        Patterns: "duplicate key", "unique constraint"
//
//	DB002 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB003 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB004 - Locked: Database file is in use by another run
//	        Patterns: "database is locked", "sqlite_busy"
//
//	DB005 - Missing table: Nothing has been consolidated yet
//	        Patterns: "no such table", "does not exist"
//
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Encoding error: No supported encoding could read the file
//	          Patterns: "encoding error"
//
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Patterns: "invalid csv"
//
//	FILE003 - Output write failed: Output directory is not writable
//	          Patterns: "output write failed"
//
//	FILE004 - Permission denied: A file could not be opened
//	          Patterns: "permission denied"
//
//	FILE005 - No source files: Nothing was downloaded for this dataset
//	          Patterns: "no source files"
//
//	FILE006 - Unsafe archive: Archive entry escapes the target directory
//	          Patterns: "illegal file path"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid number: A numeric column could not be read
//	         Patterns: "invalid number"
//
//	VAL002 - Invalid date: Date is not YYYY-MM-DD
//	         Patterns: "invalid date"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Already running: A run for this dataset is in progress
//	         Patterns: "already in progress"
//
//	RUN002 - Task not found: The task is unknown or has expired
//	         Patterns: "task not found"
//
//	RUN003 - Unknown dataset: The dataset kind is not recognised
//	         Patterns: "unknown dataset kind"
//
//	RUN004 - Cancelled: The request was cancelled
//	         Patterns: "context canceled"
//
//	RUN005 - Deadline: The request timed out
//	         Patterns: "context deadline exceeded"
//
//	RUN006 - Artist not found: No stored rows mention the artist
//	         Patterns: "artist not found"
//
// # Fetch Errors (FETCH001-FETCH099)
//
//	FETCH001 - Exhausted: Download failed after every retry
//	           Patterns: "attempts exhausted"
//
//	FETCH002 - Unauthorized: Session cookie was rejected
//	           Patterns: "session rejected"
//
//	FETCH003 - No cookie: No session cookie is configured
//	           Patterns: "no session cookie"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// Store
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Re-run the consolidation; rows are replaced on conflict",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Re-run the consolidation; rows are replaced on conflict",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DATABASE_URL and try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database file is in use",
			Action:  "Wait for the running job to finish and try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "sqlite_busy",
		msg: UserMessage{
			Message: "Database file is in use",
			Action:  "Wait for the running job to finish and try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "No consolidated data yet",
			Action:  "Run the consolidation for this dataset first",
			Code:    "DB005",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "No consolidated data yet",
			Action:  "Run the consolidation for this dataset first",
			Code:    "DB005",
		},
	},

	// Run (before the generic timeout pattern)
	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "A run for this dataset is already in progress",
			Action:  "Wait for it to finish before starting another",
			Code:    "RUN001",
		},
	},
	{
		pattern: "task not found",
		msg: UserMessage{
			Message: "Task not found",
			Action:  "The task may have expired. Start a new run",
			Code:    "RUN002",
		},
	},
	{
		pattern: "unknown dataset kind",
		msg: UserMessage{
			Message: "Unknown dataset",
			Action:  "Use one of: mails, revenue",
			Code:    "RUN003",
		},
	},
	{
		pattern: "artist not found",
		msg: UserMessage{
			Message: "Artist not found",
			Action:  "Pick an artist from the overview",
			Code:    "RUN006",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "RUN005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},

	// Files
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File could not be decoded",
			Action:  "Save the file as UTF-8 and download again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Download the export again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "output write failed",
		msg: UserMessage{
			Message: "Output could not be written",
			Action:  "Check that the output directory exists and is writable",
			Code:    "FILE003",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "A file could not be opened",
			Action:  "Check file permissions",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no source files",
		msg: UserMessage{
			Message: "No downloaded files found",
			Action:  "Run the fetch step first",
			Code:    "FILE005",
		},
	},
	{
		pattern: "illegal file path",
		msg: UserMessage{
			Message: "Archive contains an unsafe path",
			Action:  "Inspect the archive before extracting",
			Code:    "FILE006",
		},
	},

	// Validation
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "The row was skipped; check the source export",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date",
			Action:  "Use YYYY-MM-DD",
			Code:    "VAL002",
		},
	},

	// Fetch
	{
		pattern: "attempts exhausted",
		msg: UserMessage{
			Message: "Download failed after every retry",
			Action:  "Check the artist subdomain and try again later",
			Code:    "FETCH001",
		},
	},
	{
		pattern: "session rejected",
		msg: UserMessage{
			Message: "Session cookie was rejected",
			Action:  "Log in again and update BANDCAMP_COOKIE",
			Code:    "FETCH002",
		},
	},
	{
		pattern: "no session cookie",
		msg: UserMessage{
			Message: "No session cookie configured",
			Action:  "Set BANDCAMP_COOKIE",
			Code:    "FETCH003",
		},
	},

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(&DecodeError{Path: "a.csv"})
//	// msg.Code == "FILE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
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

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
