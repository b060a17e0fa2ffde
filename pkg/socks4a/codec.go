// Package socks4a implements the client side of the SOCKS4a handshake: a
// single request frame naming a hostname (no prior DNS resolution needed at
// the connector, since the proxy resolves it), and the 8-byte reply it
// elicits.
package socks4a

import "fmt"

const (
	version = 4
	cmdConnect = 1
	replyLen = 8
	grantedStatus = 90
)

// socks4aSentinel is the "destination address" SOCKS4a clients send to tell
// the proxy a hostname follows the user-id field.
var socks4aSentinel = [4]byte{0, 0, 0, 1}

// EncodeRequest builds the SOCKS4a CONNECT request frame for (port, userid,
// hostname). The caller is responsible for delivering the whole frame in a
// single write: the proxy expects one contiguous frame, not a partial one
// trickling in across several writes.
func EncodeRequest(port uint16, userid, hostname string) []byte {
	buf := make([]byte, 0, 8+len(userid)+1+len(hostname)+1)
	buf = append(buf, version, cmdConnect, byte(port>>8), byte(port))
	buf = append(buf, socks4aSentinel[:]...)
	buf = append(buf, []byte(userid)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(hostname)...)
	buf = append(buf, 0)
	return buf
}

// DecodeReply validates an 8-byte SOCKS4a reply. Per §4.2 the version byte
// must be 0 and the status byte must be 90 (request granted); any other
// value is a protocol error.
func DecodeReply(data []byte) error {
	if len(data) < replyLen {
		return fmt.Errorf("socks4a: short reply: got %d bytes, want %d", len(data), replyLen)
	}
	if data[0] != 0 {
		return fmt.Errorf("socks4a: unexpected reply version %d, want 0", data[0])
	}
	if data[1] != grantedStatus {
		return fmt.Errorf("socks4a: request rejected, status %d", data[1])
	}
	return nil
}

// ReplyLen is the fixed size of a SOCKS4a reply frame.
const ReplyLen = replyLen
