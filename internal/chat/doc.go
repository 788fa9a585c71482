// Package chat orchestrates crypto, transport and history into the
// end-to-end messaging pipeline consumed by the presentation layer.
package chat
