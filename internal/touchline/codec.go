// Package touchline implements the Roth Touchline XML register protocol:
// request construction, tolerant response parsing, and normalization of raw
// register values into typed per-zone readings.
package touchline

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Register name templates. Temperatures are fixed-point hundredths of a
// degree Celsius.
const (
	regCurrentTemp = "G%d.RaumTemp"
	regTargetTemp  = "G%d.SollTemp"
	regZoneName    = "G%d.name"

	// SystemStatusRegister is the controller-wide status code register.
	SystemStatusRegister = "R0.SystemStatus"

	maxZoneCount = 20
)

var (
	// ErrMalformedResponse means the device response was not well-formed
	// markup. It is transient for retry purposes.
	ErrMalformedResponse = errors.New("malformed device response")

	// ErrInvalidZoneCount means the requested zone count is outside [1, 20].
	ErrInvalidZoneCount = errors.New("zone count outside [1, 20]")
)

type requestItem struct {
	Name string `xml:"n"`
}

type requestBody struct {
	XMLName xml.Name      `xml:"body"`
	Items   []requestItem `xml:"item_list>i"`
}

// RequestRegisters returns the ordered register list for a full poll of
// zoneCount zones: RaumTemp, SollTemp and name per zone, then the extras.
func RequestRegisters(zoneCount int, extra ...string) ([]string, error) {
	if zoneCount < 1 || zoneCount > maxZoneCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZoneCount, zoneCount)
	}

	registers := make([]string, 0, zoneCount*3+len(extra))
	for i := 0; i < zoneCount; i++ {
		registers = append(registers,
			fmt.Sprintf(regCurrentTemp, i),
			fmt.Sprintf(regTargetTemp, i),
			fmt.Sprintf(regZoneName, i),
		)
	}
	return append(registers, extra...), nil
}

// BuildRequest serializes a read request for the given registers into the
// device's nested-list wire format:
//
//	<body><item_list><i><n>G0.RaumTemp</n></i>...</item_list></body>
func BuildRequest(zoneCount int, extra ...string) ([]byte, error) {
	registers, err := RequestRegisters(zoneCount, extra...)
	if err != nil {
		return nil, err
	}

	body := requestBody{Items: make([]requestItem, len(registers))}
	for i, name := range registers {
		body.Items[i] = requestItem{Name: name}
	}

	return xml.Marshal(body)
}

// ParseResponse extracts register name/value pairs from a device response.
//
// The envelope is firmware-dependent, so parsing is tolerant: any <i> or
// <item> element whose children include a name (<n> or <name>) and a value
// (<v> or <value>) contributes a pair, everything else is ignored. A response
// with zero recognized entries yields an empty map; only markup that does not
// parse at all is an error.
func ParseResponse(raw []byte) (map[string]string, error) {
	values := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	sawElement := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if !sawElement {
				return nil, fmt.Errorf("%w: no root element", ErrMalformedResponse)
			}
			return values, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true
		if start.Name.Local != "i" && start.Name.Local != "item" {
			continue
		}

		name, value, err := parseItem(dec, start)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if name != "" {
			values[name] = value
		}
	}
}

// parseItem consumes one item element and returns its name/value children.
func parseItem(dec *xml.Decoder, start xml.StartElement) (name, value string, err error) {
	var field *string

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "n", "name":
				field = &name
			case "v", "value":
				field = &value
			default:
				field = nil
				if err := dec.Skip(); err != nil {
					return "", "", err
				}
			}
		case xml.CharData:
			if field != nil {
				*field += string(t)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return strings.TrimSpace(name), strings.TrimSpace(value), nil
			}
			field = nil
		}
	}
}
