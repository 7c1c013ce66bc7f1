package main

import (
	"context"
	"fmt"
)

// NetworkInfo is the slice of the daemon's last block header published in
// every snapshot.
type NetworkInfo struct {
	Difficulty uint64 `json:"difficulty"`
	Height     uint64 `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	Reward     uint64 `json:"reward"`
	Hash       string `json:"hash"`
}

type lastBlockHeaderResult struct {
	BlockHeader *struct {
		Difficulty uint64 `json:"difficulty"`
		Height     uint64 `json:"height"`
		Timestamp  int64  `json:"timestamp"`
		Reward     uint64 `json:"reward"`
		Hash       string `json:"hash"`
	} `json:"block_header"`
}

type networkSource interface {
	Network(ctx context.Context) (*NetworkInfo, error)
}

// daemonNetwork reads the network block from the daemon's
// getlastblockheader call.
type daemonNetwork struct {
	rpc *RPCClient
}

func (d daemonNetwork) Network(ctx context.Context) (*NetworkInfo, error) {
	var res lastBlockHeaderResult
	if err := d.rpc.call(ctx, "getlastblockheader", nil, &res); err != nil {
		return nil, err
	}
	if res.BlockHeader == nil {
		return nil, fmt.Errorf("getlastblockheader: missing block_header")
	}
	h := res.BlockHeader
	return &NetworkInfo{
		Difficulty: h.Difficulty,
		Height:     h.Height,
		Timestamp:  h.Timestamp,
		Reward:     h.Reward,
		Hash:       h.Hash,
	}, nil
}
