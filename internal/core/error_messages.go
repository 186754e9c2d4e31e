// Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. API responses carry the code so partners can quote it.
//
// # Database Errors (DB000-DB099)
//
//	DB000 - Storage failure: The lead store could not complete the request
//	        Patterns: "storage "
//	DB001 - Duplicate key
//	        Patterns: "duplicate key", "violates unique"
//	DB004 - Connection refused
//	        Patterns: "connection refused"
//	DB005 - Connection reset
//	        Patterns: "connection reset"
//	DB006 - Timeout
//	        Patterns: "timeout"
//	DB007 - Deadlock
//	        Patterns: "deadlock"
//	DB008 - Lead not found
//	        Patterns: "lead not found"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date                   "invalid date"
//	VAL002 - Invalid number                 "invalid number"
//	VAL003 - Required field                 "required field"
//	VAL006 - Invalid enum                   "invalid enum"
//	VAL007 - Lead failed validation         "batch rejected", "schema validation failed"
//	VAL008 - Invalid query filter           "invalid filter"
//	VAL009 - Partner lead invalid           "invalid outgoing lead"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large                "file too large", "request body too large"
//	FILE002 - Malformed file                "invalid csv", "invalid xlsx", "invalid json"
//	FILE003 - Encoding error                "encoding error"
//	FILE004 - No file                       "no file provided"
//	FILE005 - Empty file                    "empty file"
//	FILE006 - Unsupported file type         "unsupported file type"
//
// # Row Shape Errors (PATH001-PATH099)
//
//	PATH001 - Column collision              "dictionary key already occupied"
//
// # Ingest Errors (UPL001-UPL099)
//
//	UPL002 - System busy                    "too many concurrent ingestions"
//	UPL004 - Request cancelled              "context canceled"
//	UPL005 - Request timeout                "context deadline exceeded"
//	UPL006 - Shutting down                  "server is shutting down"
//
// # Partner Errors (UPS001-UPS099)
//
//	UPS001 - Partner error                  "returned status"
//	UPS002 - Partner not configured         "partner api is not configured"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests             "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the application logs for
// the original error.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains. The first
// matching pattern wins, so batch and wrapper errors, whose text embeds the
// messages of the errors they carry, are listed before the field-level
// patterns.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the reference at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Batch and row shape errors (VAL007, PATH001)
	// Their text includes nested field messages, so they match first.
	// =========================================================================
	{
		pattern: "batch rejected",
		msg: UserMessage{
			Message: "One or more rows failed validation; nothing was saved",
			Action:  "Fix the listed rows and upload the whole file again",
			Code:    "VAL007",
		},
	},
	{
		pattern: "dictionary key already occupied",
		msg: UserMessage{
			Message: "Two columns write to the same field",
			Action:  "Remove either the parent column or its dotted sub-columns",
			Code:    "PATH001",
		},
	},
	{
		pattern: "schema validation failed",
		msg: UserMessage{
			Message: "The lead failed validation",
			Action:  "Correct the listed fields and resend",
			Code:    "VAL007",
		},
	},
	{
		pattern: "invalid outgoing lead",
		msg: UserMessage{
			Message: "The lead does not meet the partner's requirements",
			Action:  "Correct the listed fields and resend",
			Code:    "VAL009",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload a .csv, .xlsx or .json file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xlsx",
		msg: UserMessage{
			Message: "File is not a valid Excel workbook",
			Action:  "Save the file as .xlsx with a header row on the first sheet",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "File is not valid JSON",
			Action:  "Upload a JSON array of lead objects",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8 or pass encoding=windows-1251",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Send the file in the multipart field named file",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and at least one lead",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Field Validation Errors (VAL001-VAL008)
	// =========================================================================
	{
		pattern: "invalid filter",
		msg: UserMessage{
			Message: "The query filter is not valid",
			Action:  "Check the where, order and cursor parameters",
			Code:    "VAL008",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, DD.MM.YYYY or RFC 3339",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove currency symbols and use a standard decimal format",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid enum",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL006",
		},
	},

	// =========================================================================
	// Partner Errors (UPS001-UPS002)
	// =========================================================================
	{
		pattern: "partner api is not configured",
		msg: UserMessage{
			Message: "Partner API is not configured",
			Action:  "Set the partner URL and key in the server environment",
			Code:    "UPS002",
		},
	},
	{
		pattern: "returned status",
		msg: UserMessage{
			Message: "The partner API returned an error",
			Action:  "Review the partner response and resend",
			Code:    "UPS001",
		},
	},

	// =========================================================================
	// Ingest Errors (UPL002-UPL006)
	// =========================================================================
	{
		pattern: "too many concurrent ingestions",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "server is shutting down",
		msg: UserMessage{
			Message: "Server is shutting down",
			Action:  "Please try again in a few moments",
			Code:    "UPL006",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Database Errors (DB000-DB008)
	// Specific causes before the generic storage wrapper.
	// =========================================================================
	{
		pattern: "lead not found",
		msg: UserMessage{
			Message: "Lead not found",
			Action:  "Check the lead id",
			Code:    "DB008",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Remove duplicate leads and try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try uploading a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "storage ",
		msg: UserMessage{
			Message: "The lead store could not complete the request",
			Action:  "Please try again or contact support",
			Code:    "DB000",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
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
//	err := errors.New("duplicate key violation")
//	msg := MapError(err)
//	// msg.Code == "DB001"
//	// msg.Message == "A record with this ID already exists"
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
// Example output: "A record with this ID already exists (Code: DB001). Download failed rows to review duplicates"
//
// This is the primary function for displaying errors to end users.
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
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// WrapWithUserMessage wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
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
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(dbErr)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "A record with this ID already exists"
//	fmt.Println(ue.User.Code)         // Show "DB001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
