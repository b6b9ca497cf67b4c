package result

import "fmt"

// ErrorKind classifies a failure per the taxonomy the UI keys off.
type ErrorKind string

const (
	KindTransport   ErrorKind = "transport"
	KindAuth        ErrorKind = "auth"
	KindApplication ErrorKind = "application"
	KindNotFound    ErrorKind = "not_found"
	KindPartial     ErrorKind = "partial"
	KindCancelled   ErrorKind = "cancelled"
	KindUnknown     ErrorKind = "unknown"
)

// ErrorRecord is one classified failure observed during an adapter call.
type ErrorRecord struct {
	Kind         ErrorKind
	Message      string
	Catastrophic bool
	Raw          error
	Params       map[string]string
}

func (e ErrorRecord) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Raw != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Raw.Error())
	}
	return string(e.Kind)
}

// ErrorInfo accumulates the records of one adapter call. At most one
// record is catastrophic; it is stored separately and also terminates
// accumulation in the sandbox.
type ErrorInfo struct {
	Errors       []ErrorRecord
	Catastrophic *ErrorRecord
}

// Push appends a record, routing a catastrophic one into its slot. The
// first catastrophic record wins.
func (i *ErrorInfo) Push(rec ErrorRecord) {
	i.Errors = append(i.Errors, rec)
	if rec.Catastrophic && i.Catastrophic == nil {
		c := rec
		i.Catastrophic = &c
	}
}

// Empty reports whether nothing was recorded.
func (i *ErrorInfo) Empty() bool {
	return i == nil || (len(i.Errors) == 0 && i.Catastrophic == nil)
}
