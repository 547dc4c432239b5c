// Package chainsource adapts heterogeneous blockchain data providers
// (a canonical reference source, and comparison services such as
// Blockset or Infura) behind one uniform Adapter interface.
package chainsource

import "context"

// isGoodStatus reports whether an HTTP status code is in the 2xx range.
func isGoodStatus(status int) bool {
	return status >= 200 && status < 300
}

// Chain is the result of a get_chain call: the reported tip height, or
// a non-good status with no height on failure.
type Chain struct {
	HTTPStatus  int
	ChainHeight *int64
}

// OK reports whether the call succeeded.
func (c Chain) OK() bool {
	return isGoodStatus(c.HTTPStatus)
}

// Block is the result of a get_block call for one height.
type Block struct {
	HTTPStatus int
	Hash       *string
	PrevHash   *string
	Height     *int64
	TxnCount   *int
}

// OK reports whether the call succeeded.
func (b Block) OK() bool {
	return isGoodStatus(b.HTTPStatus)
}

// Adapter unifies the two operations every chain-data provider exposes.
type Adapter interface {
	GetChain(ctx context.Context) (Chain, error)
	GetBlock(ctx context.Context, height int64) (Block, error)
}
