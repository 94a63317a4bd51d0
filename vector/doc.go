// Package vector defines the contract of a vector index holding document
// chunks, and a Client that wraps any Index with retry and error mapping.
//
// Backends report failures as *Error values carrying an ErrorKind. Errors
// coming from third-party SDKs without a kind are classified by their message
// and status code signatures. Transient failures are retried inside the Client;
// permanent ones surface on the first attempt; KindTooLarge is surfaced as
// chunking.ErrChunkRejected so the chunking ladder can step down a tier.
package vector
