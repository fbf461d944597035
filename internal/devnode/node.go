// Package devnode serves a ledger.World over the subset of the Ethereum
// JSON-RPC API used by the indexer, the decoder and the capability probe.
//
// The world keeps no state history: eth_call and eth_getCode always read the
// latest state whatever block tag is requested.
package devnode

import (
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/chain"
	"github.com/0xivanov/dex-core/internal/ledger"
)

// Node exposes a world as an RPC endpoint.
type Node struct {
	server *rpc.Server
	logger *zap.Logger
}

// New registers the eth namespace for world.
func New(world *ledger.World, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := newEthAPI(world, logger)
	if err != nil {
		return nil, err
	}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", api); err != nil {
		return nil, err
	}
	return &Node{server: server, logger: logger}, nil
}

// Client opens an in-process connection to the node.
func (n *Node) Client() *chain.Client {
	return chain.NewClientFromRPC(rpc.DialInProc(n.server))
}

// ServeHTTP serves JSON-RPC over HTTP.
func (n *Node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.server.ServeHTTP(w, r)
}

// Close stops the server and closes its connections.
func (n *Node) Close() {
	n.server.Stop()
}
