// qr.go — QR codes for share links.
package generator

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodePNG returns PNG bytes of a QR code encoding text.
func QRCodePNG(text string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	b, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode QR: %w", err)
	}
	return b, nil
}
