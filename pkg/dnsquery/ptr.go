// Package dnsquery builds and parses the PTR queries the UDP DNS-resolution
// path of the connector uses to discover a hidden-service hostname for a
// virtual address.
package dnsquery

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/dns/dnsmessage"
)

// BuildPTRQuery encodes a standard DNS PTR query for addr's reverse name,
// tagged with the given 16-bit transaction id.
func BuildPTRQuery(id uint16, addr netip.Addr) ([]byte, error) {
	name, err := dnsmessage.NewName(reverseName(addr))
	if err != nil {
		return nil, fmt.Errorf("dnsquery: building reverse name: %w", err)
	}

	builder := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		ID:       id,
		RCode:    dnsmessage.RCodeSuccess,
		RecursionDesired: true,
	})
	builder.EnableCompression()
	if err := builder.StartQuestions(); err != nil {
		return nil, fmt.Errorf("dnsquery: start questions: %w", err)
	}
	if err := builder.Question(dnsmessage.Question{
		Name:  name,
		Type:  dnsmessage.TypePTR,
		Class: dnsmessage.ClassINET,
	}); err != nil {
		return nil, fmt.Errorf("dnsquery: add question: %w", err)
	}
	return builder.Finish()
}

// ParsePTRResponse validates the response header against id and extracts the
// first PTR record's target hostname.
func ParsePTRResponse(data []byte, id uint16) (string, error) {
	var parser dnsmessage.Parser
	header, err := parser.Start(data)
	if err != nil {
		return "", fmt.Errorf("dnsquery: parse header: %w", err)
	}
	if header.ID != id {
		return "", fmt.Errorf("dnsquery: transaction id mismatch: got %d, want %d", header.ID, id)
	}
	if header.RCode != dnsmessage.RCodeSuccess {
		return "", fmt.Errorf("dnsquery: response rcode %v", header.RCode)
	}

	if err := parser.SkipAllQuestions(); err != nil {
		return "", fmt.Errorf("dnsquery: skip questions: %w", err)
	}

	for {
		resHeader, err := parser.AnswerHeader()
		if err != nil {
			break
		}
		if resHeader.Type != dnsmessage.TypePTR {
			if err := parser.SkipAnswer(); err != nil {
				return "", fmt.Errorf("dnsquery: skip answer: %w", err)
			}
			continue
		}
		rec, err := parser.PTRResource()
		if err != nil {
			return "", fmt.Errorf("dnsquery: parse PTR resource: %w", err)
		}
		return strings.TrimSuffix(rec.PTR.String(), "."), nil
	}

	return "", fmt.Errorf("dnsquery: no PTR record in response")
}

// reverseName builds the ip6.arpa reverse-lookup name for addr: the 32
// nibbles of the address, reversed, dot-separated, suffixed with
// "ip6.arpa.".
func reverseName(addr netip.Addr) string {
	a16 := addr.As16()
	hexDigits := hex.EncodeToString(a16[:])

	var b strings.Builder
	for i := len(hexDigits) - 1; i >= 0; i-- {
		b.WriteByte(hexDigits[i])
		b.WriteByte('.')
	}
	b.WriteString("ip6.arpa.")
	return b.String()
}
