// Package qr renders WhatsApp pairing codes.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
)

// DataURLPrefix precedes the base64 PNG returned by Encode.
const DataURLPrefix = "data:image/png;base64,"

// ErrEmptyPayload is returned when there is nothing to encode.
var ErrEmptyPayload = errors.New("empty QR payload")

// Encoder turns a pairing code into a PNG data URL.
type Encoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewEncoder returns an encoder producing 256px medium-recovery images.
func NewEncoder() *Encoder {
	return &Encoder{Size: 256, Level: qrcode.Medium}
}

// Encode renders payload as "data:image/png;base64,...".
func (e *Encoder) Encode(payload string) (string, error) {
	if payload == "" {
		return "", ErrEmptyPayload
	}
	png, err := qrcode.Encode(payload, e.Level, e.Size)
	if err != nil {
		return "", fmt.Errorf("encode QR: %w", err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// DecodeDataURL returns the PNG bytes carried by a data URL produced by Encode.
func DecodeDataURL(dataURL string) ([]byte, error) {
	b64, ok := strings.CutPrefix(dataURL, DataURLPrefix)
	if !ok {
		return nil, fmt.Errorf("not a PNG data URL")
	}
	return base64.StdEncoding.DecodeString(b64)
}

// PrintTerminal draws payload to w with half-block characters so it can be
// scanned straight from a terminal.
func PrintTerminal(w io.Writer, payload string) {
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, w)
}
