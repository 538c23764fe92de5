package log

import (
	"billminder/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldClientIP       = "client_ip"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldQuery          = "query"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldUserAgent      = "user_agent"
	FieldSuccess        = "success"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldBillID         = "bill_id"
	FieldPayee          = "payee"
	FieldAmount         = "amount"
	FieldDueDate        = "due_date"
	FieldNotificationID = "notification_id"
	FieldRemindAt       = "remind_at"
	FieldAction         = "action"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentBills    = "bills"
	ComponentReminder = "reminder"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentNotify   = "notify"
	ComponentBackend  = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSchedule = "schedule"
	OpRespond  = "respond"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; nil errors add nothing.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithBill adds the identifying and display fields of a bill. Absent
// fields are left out.
func (f LogFields) WithBill(b core.Bill) LogFields {
	f[FieldBillID] = b.ID.String()
	if b.Payee != nil {
		f[FieldPayee] = *b.Payee
	}
	if b.Amount != nil {
		f[FieldAmount] = b.Amount.String()
	}
	if b.DueDate != nil {
		f[FieldDueDate] = b.FormattedDueDate()
	}
	if b.NotificationID != nil {
		f[FieldNotificationID] = *b.NotificationID
	}
	if b.RemindDate != nil {
		f[FieldRemindAt] = *b.RemindDate
	}
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
