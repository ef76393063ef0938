// Package browser abstracts the interchangeable browser automation engines
// that bots are spread across. Each engine instance runs in its own OS
// process so a crashed browser cannot take sibling batches down with it.
package browser

import "fmt"

// Kind identifies one of the supported browser engines. The set is closed:
// a switch over Kind with all three cases needs no default for correctness.
type Kind int

const (
	KindChromium Kind = iota
	KindFirefox
	KindWebkit
)

// Kinds returns all engine kinds in fixed enumeration order. Partitioning
// assigns windows to engines in this order, so it must be stable.
func Kinds() [3]Kind {
	return [3]Kind{KindChromium, KindFirefox, KindWebkit}
}

func (k Kind) String() string {
	switch k {
	case KindChromium:
		return "chromium"
	case KindFirefox:
		return "firefox"
	case KindWebkit:
		return "webkit"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a config/wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "chromium":
		return KindChromium, nil
	case "firefox":
		return KindFirefox, nil
	case "webkit":
		return KindWebkit, nil
	}
	return 0, fmt.Errorf("browser: unknown engine kind %q", s)
}

// MarshalText makes Kind readable in JSON stats maps.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
