package port

import "context"

// DocumentStore keeps opaque attachments keyed by request id.
// The engine only stores the returned reference.
type DocumentStore interface {
	Put(ctx context.Context, requestID, name string, content []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	// Delete removes every attachment of a request. Missing ones are not an error.
	Delete(ctx context.Context, requestID string) error
}
