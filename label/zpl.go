package label

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// qrPayload is the structured (asset id, tag payload) pair encoded into the
// label's 2-D matrix code.
type qrPayload struct {
	ID  string `json:"id"`
	EPC string `json:"epc"`
}

// renderZPL builds a 4x2 inch, 203 dpi label (812x406 dots) in ZPL.
// The stream is bounded by ^XA/^XZ regardless of which optional fields are
// present; the RFID write directive is emitted only when an EPC is assigned.
func renderZPL(d Description) []byte {
	ts := time.Now().Format("2006-01-02 15:04")
	qrData, _ := json.Marshal(qrPayload{ID: d.AssetID, EPC: d.EPC})

	var b strings.Builder
	b.WriteString("^XA\n")
	b.WriteString("^CI28\n")
	b.WriteString("^PW812\n")
	b.WriteString("^LL406\n")

	// Inverted header bar
	b.WriteString("^FO0,0^GB812,52,52^FS\n")
	fmt.Fprintf(&b, "^FO18,10^A0N,30,30^FR^FD%s^FS\n", d.header(zplHeaderMaxChars))

	// Body fields at fixed positions
	fmt.Fprintf(&b, "^FO18,62^A0N,20,20^FDAsset: %s^FS\n", d.AssetID)
	fmt.Fprintf(&b, "^FO18,90^A0N,18,18^FDEPC: %s^FS\n", d.epcOrPlaceholder())
	fmt.Fprintf(&b, "^FO18,114^A0N,16,16^FDType: %s^FS\n", d.Category)
	fmt.Fprintf(&b, "^FO18,136^A0N,16,16^FDLoc:  %s^FS\n", d.locationOrPlaceholder())

	// Code 128 barcode carrying the asset id
	b.WriteString("^FO18,162^BY2,3,55\n")
	b.WriteString("^BCN,55,Y,N,N\n")
	fmt.Fprintf(&b, "^FD%s^FS\n", d.AssetID)

	// QR code
	b.WriteString("^FO620,60\n")
	b.WriteString("^BQN,2,4\n")
	fmt.Fprintf(&b, "^FDMA,%s^FS\n", qrData)

	fmt.Fprintf(&b, "^FO18,252^A0N,14,14^FD%s^FS\n", ts)

	if d.EPC != "" {
		fmt.Fprintf(&b, "^RFWM,%s\n", d.EPC)
	}
	b.WriteString("^XZ")
	return []byte(b.String())
}
