package attr

import "strconv"

// Number holds a DynamoDB number as its exact decimal text. DynamoDB numbers
// carry up to 38 digits of precision, which float64 cannot represent, so the
// text is kept verbatim through encode and decode.
type Number string

func (n Number) String() string { return string(n) }

// Int64 parses the number as a base-10 integer.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 parses the number as a float, losing precision beyond what
// float64 holds.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}
