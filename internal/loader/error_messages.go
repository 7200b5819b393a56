package loader

// Error Codes Reference
//
// Failures are reported with a short code so an operator can find the cause
// in the logs or the run summary without reading driver messages.
//
//	CFG001 - Invalid specification (any KindConfig error)
//	PRS001 - File name date does not match the configured date format
//	IO001  - Source file not found
//	IO002  - Source file could not be read
//	DB001  - Duplicate key in target or audit table
//	DB002  - Value rejected by a check or not-null constraint
//	DB003  - Foreign key violation
//	DB004  - Connection refused
//	DB005  - Connection reset
//	DB006  - Timeout
//	DB007  - Deadlock
//	DB008  - Audit sequence missing
//	DB000  - Other store failure
//	UPL004 - Load cancelled
//	ERR000 - Unclassified
//
// Store errors are matched case-insensitively against driver messages; the
// first matching pattern wins, so specific patterns come first.

import (
	"context"
	"errors"
	"io/fs"
	"strings"
)

// UserMessage is the operator-facing description of a failure.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var storePatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Check the target table's unique constraints against the file",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Check the target table's unique constraints against the file",
			Code:    "DB001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Load parent tables first",
			Code:    "DB003",
		},
	},
	{
		pattern: "check constraint",
		msg: UserMessage{
			Message: "A value was rejected by a table constraint",
			Action:  "Check the failing row against the target column definitions",
			Code:    "DB002",
		},
	},
	{
		pattern: "not null constraint",
		msg: UserMessage{
			Message: "A required column received no value",
			Action:  "Check the column mapping and the failing row",
			Code:    "DB002",
		},
	},
	{
		pattern: "not-null constraint",
		msg: UserMessage{
			Message: "A required column received no value",
			Action:  "Check the column mapping and the failing row",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check the connection settings in the mapping file",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Re-run the load",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Lower the batch threshold or re-run the load",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Re-run the load",
			Code:    "DB007",
		},
	},
	{
		pattern: "seq_audit",
		msg: UserMessage{
			Message: "Audit sequence is missing",
			Action:  "Create the audit sequence or set auditIdStrategy to \"max\"",
			Code:    "DB008",
		},
	},
}

var (
	msgConfig = UserMessage{
		Message: "The mapping specification is invalid",
		Action:  "Fix the mapping file and restart",
		Code:    "CFG001",
	}
	msgParse = UserMessage{
		Message: "File name date does not match the configured date format",
		Action:  "Check dateGroup and dateFormat for this mapping",
		Code:    "PRS001",
	}
	msgNotFound = UserMessage{
		Message: "Source file not found",
		Action:  "Check the file path",
		Code:    "IO001",
	}
	msgIO = UserMessage{
		Message: "Source file could not be read",
		Action:  "Check file permissions and quoting options",
		Code:    "IO002",
	}
	msgStore = UserMessage{
		Message: "Database operation failed",
		Action:  "See the logged error for details",
		Code:    "DB000",
	}
	msgCancelled = UserMessage{
		Message: "Load was cancelled",
		Action:  "Re-run the load",
		Code:    "UPL004",
	}
	msgUnknown = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Check the application logs",
		Code:    "ERR000",
	}
)

// Describe maps a load error to a coded message. Nil maps to the zero value.
func Describe(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return msgCancelled
	}

	switch KindOf(err) {
	case KindConfig:
		return msgConfig
	case KindParse:
		return msgParse
	case KindIO:
		if errors.Is(err, fs.ErrNotExist) {
			return msgNotFound
		}
		return msgIO
	case KindStore:
		lower := strings.ToLower(err.Error())
		for _, p := range storePatterns {
			if strings.Contains(lower, p.pattern) {
				return p.msg
			}
		}
		return msgStore
	}
	return msgUnknown
}
