package log

// Attribute keys shared by every component.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldReceiptID  = "receipt_id"
	FieldAddress    = "address"
	FieldMatches    = "matches"
)

const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentWorker  = "worker"
	ComponentScanner = "scanner"
	ComponentPayment = "payment"
	ComponentTrace   = "trace"
	ComponentBackend = "backend"
)

// Operation names match the API routes that trigger them.
const (
	OpLatest    = "latest"
	OpHistory   = "history"
	OpAnalytics = "analytics"
	OpExport    = "export"
	OpDetail    = "detail"
)

// LogFields is an ordered list of key/value pairs. Keys keep the order in
// which they were added, so text output stays stable between runs.
type LogFields []any

func NewFields() LogFields {
	return make(LogFields, 0, 8)
}

func (f LogFields) add(k string, v any) LogFields {
	return append(f, k, v)
}

// WithError adds err's message; a nil error adds nothing.
func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return f.add(FieldError, err.Error())
}

func (f LogFields) WithOperation(op string) LogFields { return f.add(FieldOperation, op) }

func (f LogFields) WithAddress(addr string) LogFields { return f.add(FieldAddress, addr) }

func (f LogFields) WithHTTPRequest(method, path string) LogFields {
	return f.add(FieldMethod, method).add(FieldPath, path)
}

// ToSlice returns the pairs in the form slog's variadic args expect.
func (f LogFields) ToSlice() []any { return []any(f) }
