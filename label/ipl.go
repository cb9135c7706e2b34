package label

import (
	"fmt"
	"strings"
	"time"
)

// IPL control framing bytes.
const (
	STX = 0x02
	ETX = 0x03
)

// iplRFIDBank is the EPC Gen2 memory-bank identifier used by the R
// (RFID encode) command.
const iplRFIDBank = "E200"

// renderIPL builds the same 4x2 inch label in IPL. The stream is framed by
// STX/ETX and contains no caret commands; the RFID encode command is emitted
// only when an EPC is assigned.
func renderIPL(d Description) []byte {
	ts := time.Now().Format("2006-01-02 15:04")

	var b strings.Builder
	b.WriteByte(STX)
	b.WriteString("n\r\n")          // new label
	b.WriteString("M t\r\n")        // media: thermal transfer
	b.WriteString("S l1;c15,3\r\n") // 4in x 2in @ 203dpi
	b.WriteString("d PC\r\n")

	// Inverted header bar
	fmt.Fprintf(&b, "B 20,10,0,1,2,2,50,B,\"%s\"\r\n", d.header(iplHeaderMaxChars))

	// Body fields at fixed positions
	fmt.Fprintf(&b, "T 20,70,0,3,1,1,\"Asset ID: %s\"\r\n", d.AssetID)
	fmt.Fprintf(&b, "T 20,100,0,3,1,1,\"EPC:      %s\"\r\n", d.epcOrPlaceholder())
	fmt.Fprintf(&b, "T 20,128,0,3,1,1,\"Type:     %s\"\r\n", d.Category)
	fmt.Fprintf(&b, "T 20,150,0,3,1,1,\"Loc:      %s\"\r\n", d.locationOrPlaceholder())

	// Code 128 barcode carrying the asset id
	fmt.Fprintf(&b, "B 20,175,0,1A,3,1,60,\"%s\"\r\n", d.AssetID)

	fmt.Fprintf(&b, "T 20,260,0,3,1,1,\"%s\"\r\n", ts)

	if d.EPC != "" {
		fmt.Fprintf(&b, "R 1,%s,%s\r\n", iplRFIDBank, d.EPC)
	}
	b.WriteString("P 1\r\n") // print one copy
	b.WriteByte(ETX)
	return []byte(b.String())
}
