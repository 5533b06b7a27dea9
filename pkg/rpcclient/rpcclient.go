package rpcclient

import (
	"github.com/gagliardetto/solana-go/rpc"
)

// RpcClient reads accounts from a live cluster so they can be cloned into a
// local bank.
type RpcClient struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

// NewRpcClient reads at confirmed commitment.
func NewRpcClient(endpoint string) *RpcClient {
	return NewRpcClientWithCommitment(endpoint, rpc.CommitmentConfirmed)
}

func NewRpcClientWithCommitment(endpoint string, commitment rpc.CommitmentType) *RpcClient {
	return &RpcClient{client: rpc.New(endpoint), commitment: commitment}
}
