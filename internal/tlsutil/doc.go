// Package tlsutil provides centralized TLS configuration for every HTTP
// client hekate dials out with: the decomposition client, the embedding
// providers, and the Qdrant vector index client. TLS 1.2+, AEAD-only
// cipher suites.
package tlsutil
