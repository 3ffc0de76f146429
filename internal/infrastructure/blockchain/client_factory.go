package blockchain

import (
	"fmt"
	"sync"
)

// ClientFactory manages blockchain clients
type ClientFactory struct {
	evmClients       map[string]*EVMClient
	substrateClients map[string]*SubstrateClient
	mu               sync.RWMutex
}

// NewClientFactory creates a new client factory
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		evmClients:       make(map[string]*EVMClient),
		substrateClients: make(map[string]*SubstrateClient),
	}
}

// beforeGetEVMClientWriteLockHook runs just before GetEVMClient takes its
// write lock on a cache miss. It is a no-op in production and exists so
// tests can inject a concurrent writer to exercise the double-check branch.
var beforeGetEVMClientWriteLockHook = func(rpcURL string) {}

// GetEVMClient returns an EVM client for the given RPC URL
// If a client already exists for the URL, it returns the cached client
func (f *ClientFactory) GetEVMClient(rpcURL string) (*EVMClient, error) {
	f.mu.RLock()
	client, ok := f.evmClients[rpcURL]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	beforeGetEVMClientWriteLockHook(rpcURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if client, ok := f.evmClients[rpcURL]; ok {
		return client, nil
	}

	newClient, err := NewEVMClient(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create EVM client: %w", err)
	}

	f.evmClients[rpcURL] = newClient
	return newClient, nil
}

// RegisterEVMClient injects/overrides cached client for a specific rpcURL.
// Useful for deterministic unit tests.
func (f *ClientFactory) RegisterEVMClient(rpcURL string, client *EVMClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evmClients[rpcURL] = client
}

// GetSubstrateClient returns a Substrate JSON-RPC client for the given RPC
// URL, creating and caching one on first use.
func (f *ClientFactory) GetSubstrateClient(rpcURL string) *SubstrateClient {
	f.mu.RLock()
	client, ok := f.substrateClients[rpcURL]
	f.mu.RUnlock()
	if ok {
		return client
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.substrateClients[rpcURL]; ok {
		return client
	}
	newClient := NewSubstrateClient(rpcURL)
	f.substrateClients[rpcURL] = newClient
	return newClient
}

// RegisterSubstrateClient injects/overrides a cached client for a specific
// rpcURL. Useful for deterministic unit tests.
func (f *ClientFactory) RegisterSubstrateClient(rpcURL string, client *SubstrateClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.substrateClients[rpcURL] = client
}
