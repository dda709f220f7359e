package inet

import (
	"fmt"
	"strings"
)

// The classification of an address string.  Classification is purely
// syntactic; addresses are never resolved.
type Kind int

const (
	Invalid Kind = iota
	IPv4
	IPv6
	Hostname
)

func (k Kind) String() string {
	switch k {
	default:
		return "Invalid"
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	case Hostname:
		return "Hostname"
	}
}

const DefaultHost = "localhost"

// An internet address: a host (ip or hostname) and a port.  Addresses
// are plain values and may be freely copied.
type Address struct {
	Host string
	Port uint16
}

func NewAddress(host string, port uint16) Address {
	return Address{host, port}
}

func Localhost(port uint16) Address {
	return Address{DefaultHost, port}
}

func (a Address) Kind() Kind {
	return Classify(a.Host)
}

func (a Address) Valid() bool {
	return a.Kind() != Invalid
}

func (a Address) String() string {
	if a.Kind() == IPv6 {
		return fmt.Sprintf("[%v]:%v", a.Host, a.Port)
	}
	return fmt.Sprintf("%v:%v", a.Host, a.Port)
}

func (a *Address) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := struct {
		Host string `yaml:"address"`
		Port uint16 `yaml:"port"`
	}{Host: DefaultHost}

	if err := unmarshal(&raw); err != nil {
		return err
	}

	*a = Address{raw.Host, raw.Port}
	return nil
}

// Classifies the host string.  An IPv6 address is tried first whenever
// the string contains between 1 and 7 colons.  Otherwise the string is
// split on periods: four valid octets make an IPv4 address, and a run of
// identifiers ending in an alphabetic label makes a hostname.
func Classify(host string) Kind {
	colons := tokenCount(host, ':')
	if colons >= 2 && colons <= 8 && isIPv6(tokenize(host, ':')) {
		return IPv6
	}

	tokens := tokenize(host, '.')
	if len(tokens) == 4 && isIPv4(tokens) {
		return IPv4
	}
	if isHostname(tokens) {
		return Hostname
	}
	return Invalid
}

func tokenCount(str string, sep byte) int {
	return strings.Count(str, string(sep)) + 1
}

// Splits on the separator.  A trailing empty token is dropped, so "a." has
// a single token and the empty string has none.
func tokenize(str string, sep byte) []string {
	tokens := strings.Split(str, string(sep))
	if last := len(tokens) - 1; tokens[last] == "" {
		tokens = tokens[:last]
	}
	return tokens
}

func isIPv4(tokens []string) bool {
	for _, tok := range tokens {
		if tok == "0" {
			continue
		}
		if len(tok) == 0 {
			return false
		}

		num := 0
		for i := 0; i < len(tok); i++ {
			ch := tok[i]
			if ch < '0' || ch > '9' {
				return false
			}

			// leading zeros
			num = num*10 + int(ch-'0')
			if num == 0 {
				return false
			}
			if num > 255 {
				return false
			}
		}
	}
	return true
}

func isIPv6(tokens []string) bool {
	for _, tok := range tokens {
		if len(tok) <= 4 && (len(tok) == 0 || isHex(tok)) {
			continue
		}

		// embedded ipv4 (e.g. ::ffff:10.0.0.1)
		if tokenCount(tok, '.') == 4 {
			return isIPv4(tokenize(tok, '.'))
		}
		return false
	}
	return true
}

func isHostname(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}

	for _, tok := range tokens {
		if !isIdentifier(tok) {
			return false
		}
	}

	last := tokens[len(tokens)-1]
	for i := 0; i < len(last); i++ {
		if !isAlpha(last[i]) {
			return false
		}
	}
	return true
}

func isHex(str string) bool {
	for i := 0; i < len(str); i++ {
		ch := str[i]
		if !isDigit(ch) && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return len(str) > 0
}

func isIdentifier(str string) bool {
	for i := 0; i < len(str); i++ {
		ch := str[i]
		if !isDigit(ch) && !isAlpha(ch) && ch != '-' {
			return false
		}
	}
	return len(str) > 0 && str[0] != '-'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
