// Package transport's two socket roles mirror ZeroMQ's router/dealer
// pair: BindSocket accepts many peers and routes by identity; DialSocket
// maintains exactly one outbound connection to a parent. Both are
// CURVE-sealed via golang.org/x/crypto/nacl/box and gated by the shared
// pkg/security.Authenticator before any application frame is accepted.
package transport
