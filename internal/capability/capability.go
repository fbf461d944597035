// Package capability implements ERC-165 style interface introspection for
// in-process contracts.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// InterfaceID is the XOR of the 4-byte selectors of an interface's functions.
type InterfaceID [4]byte

func (id InterfaceID) String() string {
	return hexutil.Encode(id[:])
}

// Selector returns the 4-byte function selector of a Solidity signature.
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// InterfaceOf computes the interface ID of the given function signatures.
func InterfaceOf(signatures ...string) InterfaceID {
	var id InterfaceID
	for _, sig := range signatures {
		sel := Selector(sig)
		for i := range id {
			id[i] ^= sel[i]
		}
	}
	return id
}

var (
	// ERC165 is 0x01ffc9a7.
	ERC165 = InterfaceOf("supportsInterface(bytes4)")

	// ERC20 is 0x36372b07.
	ERC20 = InterfaceOf(
		"totalSupply()",
		"balanceOf(address)",
		"transfer(address,uint256)",
		"transferFrom(address,address,uint256)",
		"approve(address,uint256)",
		"allowance(address,address)",
	)

	// PoolFactory identifies contracts allowed to initialize pools.
	PoolFactory = InterfaceOf(
		"claimOwnership()",
		"createPool(address,address,address,uint256)",
		"getPool(address,address,uint256)",
		"owner()",
		"pendingOwner()",
		"transferOwnership(address,bool)",
	)

	// Invalid must never be reported as supported.
	Invalid = InterfaceID{0xff, 0xff, 0xff, 0xff}
)

var named = map[string]InterfaceID{
	"erc165":  ERC165,
	"erc20":   ERC20,
	"factory": PoolFactory,
}

// Names lists the interfaces ParseInterface accepts by name.
func Names() []string {
	out := make([]string, 0, len(named))
	for name := range named {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ParseInterface resolves a well-known interface name or a 0x-prefixed
// 4-byte interface ID.
func ParseInterface(s string) (InterfaceID, error) {
	if id, ok := named[strings.ToLower(strings.TrimSpace(s))]; ok {
		return id, nil
	}
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) != 4 {
		return InterfaceID{}, fmt.Errorf("unknown interface %q", s)
	}
	var id InterfaceID
	copy(id[:], raw)
	return id, nil
}

// Introspector is implemented by contracts that declare their interfaces.
type Introspector interface {
	SupportsInterface(id InterfaceID) bool
}

// Result is the outcome of a capability probe.
type Result int

const (
	// ProbeFailed means the target cannot answer an introspection query at all.
	ProbeFailed Result = iota
	Unsupported
	Supported
)

func (r Result) String() string {
	switch r {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "probe_failed"
	}
}

// Probe asks target whether it supports id. Targets that are not contracts,
// or contracts without introspection, yield ProbeFailed.
func Probe(target any, id InterfaceID) Result {
	in, ok := target.(Introspector)
	if !ok || in == nil {
		return ProbeFailed
	}
	if in.SupportsInterface(id) {
		return Supported
	}
	return Unsupported
}

// Declared is a ready-made Introspector over a fixed interface set. ERC165
// itself is always included.
type Declared []InterfaceID

func (d Declared) SupportsInterface(id InterfaceID) bool {
	if id == Invalid {
		return false
	}
	if id == ERC165 {
		return true
	}
	for _, declared := range d {
		if declared == id {
			return true
		}
	}
	return false
}
