// Package identity loads the TLS server identity: a PEM certificate chain and
// an ECDSA private key.
//
// Keys may be SEC1 ("EC PRIVATE KEY"), PKCS#8 ("PRIVATE KEY"), or
// passphrase-protected PKCS#8 ("ENCRYPTED PRIVATE KEY"). Keys of any other
// algorithm are rejected.
package identity
