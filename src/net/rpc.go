package net

import (
	"github.com/mosaicnetworks/nimona/src/object"
)

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response *object.Object
	Error    error
}

// RPC encapsulates an incoming object and provides a response mechanism.
type RPC struct {
	Object   *object.Object
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both. The response
// may be nil.
func (r *RPC) Respond(resp *object.Object, err error) {
	r.RespChan <- RPCResponse{resp, err}
}
