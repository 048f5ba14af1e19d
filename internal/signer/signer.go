package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer abstracts the session key. The wallet adapter reports Source as
// the connector name in its state snapshot.
type Signer interface {
	Address() common.Address
	Source() string
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}
