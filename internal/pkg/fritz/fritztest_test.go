package fritz

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testDescription = `<?xml version="1.0"?>
<root xmlns="urn:dslforum-org:device-1-0">
 <device>
  <deviceType>urn:dslforum-org:device:InternetGatewayDevice:1</deviceType>
  <serviceList>
   <service>
    <serviceType>urn:dslforum-org:service:DeviceInfo:1</serviceType>
    <serviceId>urn:DeviceInfo-com:serviceId:DeviceInfo1</serviceId>
    <controlURL>/upnp/control/deviceinfo</controlURL>
    <SCPDURL>/deviceinfoSCPD.xml</SCPDURL>
   </service>
   <service>
    <serviceType>urn:dslforum-org:service:X_AVM-DE_Homeauto:1</serviceType>
    <serviceId>urn:X_AVM-DE_Homeauto-com:serviceId:X_AVM-DE_Homeauto1</serviceId>
    <controlURL>/upnp/control/x_homeauto</controlURL>
    <SCPDURL>/x_homeautoSCPD.xml</SCPDURL>
   </service>
  </serviceList>
  <deviceList>
   <device>
    <serviceList>
     <service>
      <serviceType>urn:dslforum-org:service:WANIPConnection:1</serviceType>
      <serviceId>urn:WANIPConnection-com:serviceId:WANIPConnection1</serviceId>
      <controlURL>/upnp/control/wanipconnection1</controlURL>
      <SCPDURL>/wanipconnSCPD.xml</SCPDURL>
     </service>
    </serviceList>
   </device>
  </deviceList>
 </device>
</root>`

const testSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:dslforum-org:service-1-0">
 <actionList>
  <action><name>GetInfo</name></action>
  <action><name>GetGenericDeviceInfos</name></action>
  <action><name>GetSpecificDeviceInfos</name></action>
 </actionList>
</scpd>`

// fakeDevice serves a TR-064 description and dispatches SOAP calls to
// handlers keyed by action name.
type fakeDevice struct {
	actions map[string]func(args map[string]string) (map[string]string, int)
	calls   []string
}

func soapResponse(action string, out map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0"?><s:Envelope xmlns:s="%s"><s:Body><u:%sResponse xmlns:u="urn:test">`, envelopeNS, action)
	for k, v := range out {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, v, k)
	}
	fmt.Fprintf(&b, "</u:%sResponse></s:Body></s:Envelope>", action)
	return b.String()
}

func soapFault(code int, desc string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><s:Envelope xmlns:s="%s"><s:Body><s:Fault>
<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>
<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>%d</errorCode><errorDescription>%s</errorDescription></UPnPError></detail>
</s:Fault></s:Body></s:Envelope>`, envelopeNS, code, desc)
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == descriptionPath:
		_, _ = io.WriteString(w, testDescription)
	case strings.HasSuffix(r.URL.Path, "SCPD.xml"):
		_, _ = io.WriteString(w, testSCPD)
	case strings.HasPrefix(r.URL.Path, "/upnp/control/"):
		soapAction := strings.Trim(r.Header.Get("SOAPAction"), `"`)
		action := soapAction[strings.LastIndex(soapAction, "#")+1:]
		d.calls = append(d.calls, action)
		args, err := decodeArgs(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h, ok := d.actions[action]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, soapFault(401, "Invalid Action"))
			return
		}
		out, code := h(args)
		if code != 0 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, soapFault(code, "error"))
			return
		}
		_, _ = io.WriteString(w, soapResponse(action, out))
	default:
		http.NotFound(w, r)
	}
}

func decodeArgs(r io.Reader) (map[string]string, error) {
	dec := xml.NewDecoder(r)
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if _, ok := tok.(xml.StartElement); ok {
			depth++
			// Envelope > Body > Action
			if depth == 3 {
				return readChildren(dec)
			}
		}
	}
}

func newFakeDevice(t *testing.T, d *fakeDevice) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return srv
}
