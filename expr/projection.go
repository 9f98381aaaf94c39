package expr

import "strings"

// Projection selects which attributes a read returns. The zero Projection
// selects everything and encodes to nothing.
type Projection struct {
	fields []Path
}

// Project builds a projection over the given document paths.
func Project(fields ...Path) Projection {
	return Projection{fields: fields}
}

// And extends the projection with another path.
func (pr Projection) And(f Path) Projection {
	out := make([]Path, len(pr.fields), len(pr.fields)+1)
	copy(out, pr.fields)
	return Projection{fields: append(out, f)}
}

// IsZero reports whether no projection was set.
func (pr Projection) IsZero() bool { return len(pr.fields) == 0 }

// Encode renders the comma-joined projection expression.
func (pr Projection) Encode(p *Parameters) (string, error) {
	encoded := make([]string, len(pr.fields))
	for i, f := range pr.fields {
		path, err := p.EncodePath(f)
		if err != nil {
			return "", err
		}
		encoded[i] = path
	}
	return strings.Join(encoded, ","), nil
}
