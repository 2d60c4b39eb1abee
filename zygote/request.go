package zygote

import (
	"fmt"
	"strings"
)

// SignalCache is the trailing token that keeps the forked child in the loop;
// any other trailing token makes it proceed to serve
const SignalCache = "cache"

// CacheRequest is one control message consumed per loop iteration
type CacheRequest struct {
	Modules []string
	Signal  string
}

// ParseCacheRequest splits a control line into module names and the trailing
// signal token
func ParseCacheRequest(line string) (CacheRequest, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CacheRequest{}, fmt.Errorf("zygote: empty cache request")
	}
	return CacheRequest{
		Modules: fields[:len(fields)-1],
		Signal:  fields[len(fields)-1],
	}, nil
}

// Serve reports whether the forked child should escape the loop
func (r CacheRequest) Serve() bool {
	return r.Signal != SignalCache
}
