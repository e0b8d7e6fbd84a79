package fritz

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	encodingNS = "http://schemas.xmlsoap.org/soap/encoding/"
)

// description is tr64desc.xml. Services can live on nested devices.
type description struct {
	Device deviceDesc `xml:"device"`
}

type deviceDesc struct {
	Services []serviceDesc `xml:"serviceList>service"`
	Devices  []deviceDesc  `xml:"deviceList>device"`
}

type serviceDesc struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

func (d deviceDesc) flatten() []serviceDesc {
	out := append([]serviceDesc{}, d.Services...)
	for _, sub := range d.Devices {
		out = append(out, sub.flatten()...)
	}
	return out
}

type scpd struct {
	Actions []struct {
		Name string `xml:"name"`
	} `xml:"actionList>action"`
}

type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	UPnP   struct {
		ErrorCode        int    `xml:"errorCode"`
		ErrorDescription string `xml:"errorDescription"`
	} `xml:"detail>UPnPError"`
}

// serviceName is the last segment of a serviceId,
// "urn:X_AVM-DE_Homeauto-com:serviceId:X_AVM-DE_Homeauto1" -> "X_AVM-DE_Homeauto1".
func serviceName(serviceID string) string {
	if i := strings.LastIndex(serviceID, ":"); i >= 0 {
		return serviceID[i+1:]
	}
	return serviceID
}

func buildEnvelope(serviceType, action string, params map[string]string) []byte {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&b, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s"><s:Body>`, envelopeNS, encodingNS)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, serviceType)
	for _, k := range keys {
		fmt.Fprintf(&b, "<%s>", k)
		_ = xml.EscapeText(&b, []byte(params[k]))
		fmt.Fprintf(&b, "</%s>", k)
	}
	fmt.Fprintf(&b, `</u:%s></s:Body></s:Envelope>`, action)
	return b.Bytes()
}

// parseResponse returns the children of <ActionResponse> as a flat map, or the
// fault carried in the body.
func parseResponse(r io.Reader) (map[string]string, *fault, error) {
	dec := xml.NewDecoder(r)
	inBody := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("no response element in soap body")
		}
		if err != nil {
			return nil, nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case start.Name.Local == "Body":
			inBody = true
		case !inBody:
		case start.Name.Local == "Fault":
			f := &fault{}
			if err := dec.DecodeElement(f, &start); err != nil {
				return nil, nil, err
			}
			return nil, f, nil
		default:
			out, err := readChildren(dec)
			return out, nil, err
		}
	}
}

func readChildren(dec *xml.Decoder) (map[string]string, error) {
	out := map[string]string{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var v string
			if err := dec.DecodeElement(&v, &t); err != nil {
				return nil, err
			}
			out[t.Name.Local] = v
		case xml.EndElement:
			return out, nil
		}
	}
}
