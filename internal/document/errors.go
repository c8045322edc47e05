package document

import "errors"

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrDocumentTooLarge is returned when a document exceeds the size limit.
	ErrDocumentTooLarge = errors.New("document too large")
	// ErrNestingTooDeep is returned when arrays and objects nest past the limit.
	ErrNestingTooDeep = errors.New("document nesting too deep")
	// ErrInvalidFieldName is returned for empty, oversized or reserved field names.
	ErrInvalidFieldName = errors.New("invalid field name")
	// ErrInvalidString is returned for string values that are not valid UTF-8.
	ErrInvalidString = errors.New("string is not valid UTF-8")
	// ErrInvalidTableName is returned for table names the store cannot key.
	ErrInvalidTableName = errors.New("invalid table name")
	// ErrSystemField is returned when a write tries to set a system field.
	ErrSystemField = errors.New("system fields cannot be set")
	// ErrInvalidID is returned for ids the store never generates.
	ErrInvalidID = errors.New("invalid document id")
)
