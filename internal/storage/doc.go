// Package storage provides an optional delivery audit log.
//
// It records completed send outcomes only. Pending batched messages are
// in-memory state and are lost on restart.
package storage
