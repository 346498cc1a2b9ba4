// Package cache holds recently read blocks of stored fragments in memory.
//
// LRUBlockCache evicts the least recently used block once its byte capacity
// is reached and charges its contents to a resource.Controller.
package cache
