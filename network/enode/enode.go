package enode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
)

const nodeIDBytes = 512 / 8

var (
	ErrInvalidScheme = errors.New("invalid URL scheme, expected 'enode'")
	ErrInvalidID     = errors.New("invalid node id")
)

// ID is the unique identifier of each node: the uncompressed secp256k1
// public key without its 0x04 prefix.
type ID [nodeIDBytes]byte

func (i ID) String() string {
	return hex.EncodeToString(i[:])
}

func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ID) UnmarshalText(text []byte) error {
	id, err := ParseID(string(text))
	if err != nil {
		return err
	}

	*i = id

	return nil
}

// TerminalString returns a shortened form for logs
func (i ID) TerminalString() string {
	return hex.EncodeToString(i[:8])
}

// IsZero reports whether the id was never set
func (i ID) IsZero() bool {
	return i == ID{}
}

// Pubkey returns the secp256k1 key the id was derived from
func (i ID) Pubkey() (*btcec.PublicKey, error) {
	buf := make([]byte, 0, nodeIDBytes+1)
	buf = append(buf, 0x04)
	buf = append(buf, i[:]...)

	pub, err := btcec.ParsePubKey(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	return pub, nil
}

// BytesToID copies a 64 byte slice into an ID
func BytesToID(b []byte) (ID, error) {
	var id ID

	if len(b) != nodeIDBytes {
		return id, fmt.Errorf("%w: expected %d bytes but found %d", ErrInvalidID, nodeIDBytes, len(b))
	}

	copy(id[:], b)

	return id, nil
}

// ParseID decodes a hex encoded node id
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("failed to decode id: %w", err)
	}

	return BytesToID(b)
}

// PubkeyToID converts a public key to a node id
func PubkeyToID(pub *btcec.PublicKey) ID {
	var id ID

	copy(id[:], pub.SerializeUncompressed()[1:])

	return id
}

// Node is the identity and advertised endpoint of a remote peer.
type Node struct {
	ID  ID
	IP  net.IP
	TCP uint16
	UDP uint16
}

// New creates a node record for the given identity and tcp endpoint
func New(id ID, ip net.IP, port uint16) *Node {
	return &Node{ID: id, IP: ip, TCP: port, UDP: port}
}

// ParseURL parses an enode address
func ParseURL(rawurl string) (*Node, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "enode" {
		return nil, ErrInvalidScheme
	}

	if u.User == nil {
		return nil, fmt.Errorf("%w: id not found", ErrInvalidID)
	}

	id, err := ParseID(u.User.String())
	if err != nil {
		return nil, err
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address '%s'", host)
	}

	tcpPort, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid tcp port '%s': %w", port, err)
	}

	udpPort := tcpPort
	if discPort := u.Query().Get("discport"); discPort != "" {
		udpPort, err = strconv.ParseUint(discPort, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid udp port '%s': %w", discPort, err)
		}
	}

	return &Node{
		ID:  id,
		IP:  ip,
		TCP: uint16(tcpPort),
		UDP: uint16(udpPort),
	}, nil
}

func (n *Node) String() string {
	url := fmt.Sprintf("enode://%s@%s", n.ID.String(), n.TCPAddr().String())

	if n.TCP != n.UDP {
		url += "?discport=" + strconv.Itoa(int(n.UDP))
	}

	return url
}

// TCPAddr returns the TCP address
func (n *Node) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: n.IP, Port: int(n.TCP)}
}

// IsDialable reports whether the endpoint can be used for an outbound dial
func (n *Node) IsDialable() bool {
	return n.TCP != 0 && IsRoutable(n.IP)
}

// IsRoutable reports whether ip is a concrete unicast address. Loopback and
// private ranges are accepted so local clusters can gossip.
func IsRoutable(ip net.IP) bool {
	if ip == nil || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}

	return ip.To4() != nil || len(ip) == net.IPv6len
}
