// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldSessionID  = "session_id"
	FieldResourceID = "resource_id"
	FieldNextID     = "next_id"
	FieldKind       = "kind"
	FieldToken      = "token"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTrigger   = "trigger"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Time fields
	FieldExpiresAt  = "expires_at"
	FieldExpiresIn  = "expires_in"
	FieldDurationMS = "duration_ms"
)
