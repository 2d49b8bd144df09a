package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies engine errors for callers.
type Category int

const (
	// CategoryInternal is an unexpected failure inside the engine
	CategoryInternal Category = iota
	// CategoryNotFound means no profile exists for the subject
	CategoryNotFound
	// CategoryInvalidInput means the request was rejected before any state changed
	CategoryInvalidInput
	// CategoryTransientStorage means a profile store read or write failed
	CategoryTransientStorage
	// CategoryContentOptimization means a content transformer failed
	CategoryContentOptimization
	// CategoryConflict means the record already exists
	CategoryConflict
)

func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "not_found"
	case CategoryInvalidInput:
		return "invalid_input"
	case CategoryTransientStorage:
		return "transient_storage"
	case CategoryContentOptimization:
		return "content_optimization"
	case CategoryConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified engine error.
type Error struct {
	Category Category
	// Operation that failed, e.g. "record_metrics"
	Op string
	// SubjectID the operation was acting on, if any
	SubjectID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category, e.Op)
	if e.SubjectID != "" {
		msg += fmt.Sprintf(" (subject %s)", e.SubjectID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether retrying the operation may succeed.
func (e *Error) IsRetryable() bool {
	return e.Category == CategoryTransientStorage
}

// NotFound reports a subject without a profile.
func NotFound(op, subjectID string) *Error {
	return &Error{
		Category:  CategoryNotFound,
		Op:        op,
		SubjectID: subjectID,
		Message:   "optimization profile not found",
	}
}

// InvalidInput reports a rejected request.
func InvalidInput(op, subjectID, message string, err error) *Error {
	return &Error{
		Category:  CategoryInvalidInput,
		Op:        op,
		SubjectID: subjectID,
		Message:   message,
		Err:       err,
	}
}

// TransientStorage wraps a store failure.
func TransientStorage(op, subjectID string, err error) *Error {
	return &Error{
		Category:  CategoryTransientStorage,
		Op:        op,
		SubjectID: subjectID,
		Message:   "profile store unavailable",
		Err:       err,
	}
}

// ContentOptimization wraps a transformer failure.
func ContentOptimization(contentType string, err error) *Error {
	return &Error{
		Category: CategoryContentOptimization,
		Op:       "optimize_content",
		Message:  fmt.Sprintf("content type %q", contentType),
		Err:      err,
	}
}

// Conflict reports a duplicate create.
func Conflict(op, subjectID string) *Error {
	return &Error{
		Category:  CategoryConflict,
		Op:        op,
		SubjectID: subjectID,
		Message:   "optimization profile already exists",
	}
}

// CategoryOf returns the category of the first classified error in err's chain.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category, true
	}
	return CategoryInternal, false
}

func is(err error, c Category) bool {
	got, ok := CategoryOf(err)
	return ok && got == c
}

func IsNotFound(err error) bool     { return is(err, CategoryNotFound) }
func IsInvalidInput(err error) bool { return is(err, CategoryInvalidInput) }
func IsTransient(err error) bool    { return is(err, CategoryTransientStorage) }
func IsConflict(err error) bool     { return is(err, CategoryConflict) }

// WithSubject returns a copy of a classified error bound to an operation and subject.
// Unclassified errors are treated as storage failures.
func WithSubject(err error, op, subjectID string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		cp := *e
		cp.Op = op
		if cp.SubjectID == "" {
			cp.SubjectID = subjectID
		}
		return &cp
	}
	return TransientStorage(op, subjectID, err)
}
