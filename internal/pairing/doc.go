// Package pairing persists the validated device identities of both
// sides: the pairing record with a signed trust token. It performs no
// I/O retries; persistence failures propagate to the caller, who decides
// whether to proceed connected-but-unpaired or abort.
package pairing
