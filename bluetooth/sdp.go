package bluetooth

import (
	"encoding/hex"
	"fmt"
)

// sdpRecordTemplate is the HID device SDP record pushed to BlueZ as the
// ServiceRecord registration option. Attributes:
//
//	0x0001  service class (HID, 0x1124)
//	0x0004  protocol descriptor list (L2CAP on the control PSM, then HIDP)
//	0x0005  browse group (public, 0x1002)
//	0x0006  language base (en, UTF-8, base 0x0100)
//	0x0009  profile descriptor list (HID 1.0)
//	0x0100  service name
//	0x0101  service description
//	0x0201  HID parser version
//	0x0206  HID descriptor list (report descriptor, type 0x22)
//	0x020d  interrupt PSM announced via additional protocol list semantics
//
// Verbatim fields are filled per registration attempt from the current
// ServiceIdentity, never cached across UUID changes.
const sdpRecordTemplate = `<?xml version="1.0" encoding="UTF-8" ?>
<record>
    <attribute id="0x0001">
        <sequence>
            <uuid value="%s" />
        </sequence>
    </attribute>
    <attribute id="0x0004">
        <sequence>
            <sequence>
                <uuid value="0x0100" />
                <uint16 value="0x0011" />
            </sequence>
            <sequence>
                <uuid value="0x0011" />
            </sequence>
        </sequence>
    </attribute>
    <attribute id="0x0005">
        <sequence>
            <uuid value="0x1002" />
        </sequence>
    </attribute>
    <attribute id="0x0006">
        <sequence>
            <uint16 value="0x656e" />
            <uint16 value="0x006a" />
            <uint16 value="0x0100" />
        </sequence>
    </attribute>
    <attribute id="0x0009">
        <sequence>
            <sequence>
                <uuid value="0x1124" />
                <uint16 value="0x0100" />
            </sequence>
        </sequence>
    </attribute>
    <attribute id="0x0100">
        <text value="%s" />
    </attribute>
    <attribute id="0x0101">
        <text value="%s" />
    </attribute>
    <attribute id="0x0201">
        <uint16 value="0x0111" />
    </attribute>
    <attribute id="0x0206">
        <sequence>
            <sequence>
                <uint8 value="0x22" />
                <text encoding="hex" value="%s" />
            </sequence>
        </sequence>
    </attribute>
</record>
`

// BuildSdpRecord renders the SDP record for the given identity. Read-only
// derived data; a fresh record is built for every registration attempt.
func BuildSdpRecord(identity *ServiceIdentity) string {
	return fmt.Sprintf(sdpRecordTemplate,
		identity.ServiceUUID,
		SERVICE_NAME,
		SERVICE_DESCRIPTION,
		hex.EncodeToString(MouseReportDescriptor),
	)
}
