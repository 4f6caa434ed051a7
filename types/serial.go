package types

import "errors"

// ------------------------
// Serial
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

func (p *Parity) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"none"`, `""`, `null`:
		*p = ParityNone
	case `"even"`:
		*p = ParityEven
	case `"odd"`:
		*p = ParityOdd
	default:
		return errors.New("parity: want none, even or odd")
	}
	return nil
}
