package label

import (
	"errors"
	"fmt"
)

// Language identifies the printer command dialect used to render a label.
type Language int

const (
	// ZPL is the Zebra Programming Language (caret commands, ^XA...^XZ).
	ZPL Language = iota
	// IPL is the Intermec Printer Language (STX/ETX framed commands).
	IPL
)

// String returns the lowercase dialect name.
func (l Language) String() string {
	switch l {
	case ZPL:
		return "zpl"
	case IPL:
		return "ipl"
	}
	return fmt.Sprintf("Language(%d)", int(l))
}

// Ext returns the backup-file extension for the dialect.
func (l Language) Ext() string {
	return l.String()
}

// Placeholder tokens used when optional fields are absent, so the
// fixed-position layout never renders an empty field.
const (
	Unassigned         = "UNASSIGNED"
	missingFieldMarker = "—"
	zplHeaderMaxChars  = 30
	iplHeaderMaxChars  = 28
)

// ErrEmptyAssetID is returned when a description has no asset identifier.
// It is rejected locally, before any bytes are built or sent.
var ErrEmptyAssetID = errors.New("asset id is required")

// Description holds the fields of one label. It is a value type; callers
// construct a fresh Description per print request and never mutate it.
type Description struct {
	AssetID  string
	EPC      string // optional RFID tag payload; empty means unassigned
	Name     string
	Location string
	Category string
}

// Validate checks the description before any rendering or I/O happens.
func (d Description) Validate() error {
	if d.AssetID == "" {
		return ErrEmptyAssetID
	}
	return nil
}

// Render produces the raw label bytes for the given dialect. The output is
// deterministic apart from the embedded human-readable timestamp.
func Render(lang Language, d Description) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch lang {
	case ZPL:
		return renderZPL(d), nil
	case IPL:
		return renderIPL(d), nil
	}
	panic(fmt.Sprintf("label: render called with invalid language %d", int(lang)))
}

// header returns the label headline: the display name, falling back to the
// asset id, capped at max characters. Overlong input is truncated, never
// wrapped or rejected.
func (d Description) header(max int) string {
	h := d.Name
	if h == "" {
		h = d.AssetID
	}
	return truncate(h, max)
}

func (d Description) epcOrPlaceholder() string {
	if d.EPC == "" {
		return Unassigned
	}
	return d.EPC
}

func (d Description) locationOrPlaceholder() string {
	if d.Location == "" {
		return missingFieldMarker
	}
	return d.Location
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
