// Package config defines the configuration for a nimona node.
//
// Regardless of how nimona is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, nimona relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key   // the private key of the node (cf. nimona keygen), optionally age encrypted.
//  peers.json // a JSON file containing the address book.
//  cert.pem   // (optional) the TLS certificate of the WAMP router.
//  key.pem    // (optional) the TLS key of the WAMP router, when this node runs one.
package config
