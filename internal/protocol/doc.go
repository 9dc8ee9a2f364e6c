// Package protocol implements the relay's line-oriented wire format.
//
// Every frame on the wire is a single line terminated by '\n'. Frames whose
// first byte is SignalPrefix carry typing indicators; anything else is chat
// text. The Framer turns an arbitrary byte stream back into frames and the
// codec functions map frames to and from the transport-neutral Frame type
// that the server broadcasts to every kind of peer.
package protocol
