// Package cli provides the interactive cryptchat command-line client.
//
// It wires configuration, the encrypted key/value stores, the photo vault,
// and the conversation service into a REPL. The vault is locked until the
// PIN (or a biometric stand-in) is supplied; conversation commands work
// regardless of the vault state.
//
// Key features:
//   - setpin / unlock / lock / changepin / reset for the vault PIN
//   - add / list / show / thumb / export / move / delete for vault images
//   - newconv, dhgen + dhagree for conversation keys
//   - send / sendimg / history / encrypt / decrypt / forget for messages
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
