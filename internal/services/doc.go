// Package services holds the issuance boundary between the protocol
// endpoints and the license business logic. The transport layer depends
// only on the Issuer interface; SigningIssuer is the reference
// implementation used by tests and single-binary deployments, with
// persistence abstracted behind KeyStore.
package services
