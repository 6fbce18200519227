package nft

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SimpleNFTABI is the interface of the deployed collection contract, limited to
// the calls this client makes plus the Transfer event.
const SimpleNFTABI = `[
  {"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"imageURI","type":"string"}]},
  {"type":"function","name":"mintNFT","stateMutability":"payable",
   "inputs":[{"name":"recipient","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"supportsInterface","stateMutability":"view",
   "inputs":[{"name":"interfaceId","type":"bytes4"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"tokenId","type":"uint256","indexed":true}]}
]`

// ERC-165 interface identifiers.
var (
	InterfaceERC721           = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceERC721Enumerable = [4]byte{0x78, 0x0e, 0x9d, 0x63}
)

var parsedABI = mustParseABI(SimpleNFTABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("nft: parse abi: " + err.Error())
	}
	return parsed
}

