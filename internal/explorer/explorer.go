// Package explorer formats addresses and transaction hashes for display.
package explorer

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Short abbreviates an address as 0x1234...abcd.
func Short(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// Links builds block explorer URLs. A zero Links returns empty strings.
type Links struct {
	Base string
}

func (l Links) Tx(hash common.Hash) string {
	if l.Base == "" || hash == (common.Hash{}) {
		return ""
	}
	return strings.TrimRight(l.Base, "/") + "/tx/" + hash.Hex()
}

func (l Links) Address(addr common.Address) string {
	if l.Base == "" {
		return ""
	}
	return strings.TrimRight(l.Base, "/") + "/address/" + addr.Hex()
}
