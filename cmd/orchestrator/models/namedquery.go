package models

// NamedQuery is a stored, parameterized query template owned by a customer
type NamedQuery struct {
	Customer int
	Name     string
	Template string
	Global   bool
}

// QueryMapping specifies which asset property a named-query field maps to
type QueryMapping int

const (
	MappingUnset QueryMapping = iota
	MappingString1
	MappingString2
	MappingString3
	MappingNumber1
	MappingNumber2
	MappingNumber3
)

// OrderDirection for a sort clause
type OrderDirection int

const (
	OrderAscending OrderDirection = iota
	OrderDescending
)

// QueryOrder is a single (field, direction) sort clause
type QueryOrder struct {
	Field     QueryMapping
	Direction OrderDirection
}

// ParsedNamedQuery is the result of parsing a named-query template with
// caller-supplied arguments. Parse failures are recorded on the query
// itself via SetError; a faulty query must never be executed against the
// catalog - callers check IsFaulty first.
type ParsedNamedQuery struct {
	Customer int
	Name     string

	Space     *int
	SpaceName *string
	String1   *string
	String2   *string
	String3   *string
	Number1   *int64
	Number2   *int64
	Number3   *int64
	Batches   []int64

	Manifest QueryMapping
	Sequence QueryMapping
	Canvas   QueryMapping
	Ordering []QueryOrder

	IsFaulty     bool
	ErrorMessage string
}

// SetError marks this query as faulty and records the reason
func (q *ParsedNamedQuery) SetError(msg string) {
	q.ErrorMessage = msg
	q.IsFaulty = true
}

// StoredParsedNamedQuery extends a parsed query with the storage keys of
// its persisted projection
type StoredParsedNamedQuery struct {
	ParsedNamedQuery

	StorageKey     string
	ControlFileKey string
	ObjectName     string
	Args           []string
}

// NamedQueryResult pairs a parsed query with the catalog records it
// selected. Results is empty when the query was faulty or matched nothing.
type NamedQueryResult struct {
	ParsedQuery *ParsedNamedQuery
	Results     []AssetRecord
}
