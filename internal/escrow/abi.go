package escrow

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// escrowABIJSON must stay in lockstep with the deployed FreelancePlatform events.
const escrowABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "jobId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "client", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "JobCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "jobId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "freelancer", "type": "address"}
    ],
    "name": "JobAccepted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "jobId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "freelancer", "type": "address"}
    ],
    "name": "JobCompleted",
    "type": "event"
  }
]`

var (
	escrowABI     abi.ABI
	escrowABIOnce sync.Once
	escrowABIErr  error
)

// EscrowABI returns the parsed escrow event ABI.
func EscrowABI() (abi.ABI, error) {
	escrowABIOnce.Do(func() {
		escrowABI, escrowABIErr = abi.JSON(strings.NewReader(escrowABIJSON))
	})
	return escrowABI, escrowABIErr
}
