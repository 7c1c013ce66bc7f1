//go:build !nojsonsimd

package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Pretouch the types encoded on every collection cycle and every RPC
	// round-trip so the first cycle does not pay sonic's codegen cost.
	_ = sonic.Pretouch(reflect.TypeOf(statsPayload{}))
	_ = sonic.Pretouch(reflect.TypeOf(targetedPayload{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcRequest{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcResponse{}))
}
