// Package server implements the chat relay.
//
// TCP sessions and WebSocket clients both join a single Hub. The Hub owns
// the Registry of current members and fans every chat line and typing
// signal out to all members except the sender. Each member encodes frames
// for its own transport, so line-protocol and browser users see each other.
//
// Broadcast writes to each recipient in turn and blocks on it. A recipient
// that stops reading delays the rest of the broadcast until its write
// deadline expires.
package server
