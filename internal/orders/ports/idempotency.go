package ports

import "context"

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
	OrderID    int64  `json:"order_id"`
}

// IdempotencyStore ensures create operations can be retried safely.
//
// A request first claims its key. Exactly one caller wins a claim; it later completes the
// claim with Save, or drops it with Release when no response should be replayed.
type IdempotencyStore interface {
	// Claim reserves key for the caller. When claimed is false, stored holds the saved
	// response, or is nil while another request still holds the claim.
	Claim(ctx context.Context, key string) (stored *StoredResponse, claimed bool, err error)
	// Get returns the saved response, or nil, nil when the key is unseen or still claimed.
	Get(ctx context.Context, key string) (*StoredResponse, error)
	// Save completes a claim. A response already saved for the key is kept.
	Save(ctx context.Context, key string, response StoredResponse) error
	// Release drops an unfinished claim. Saved responses are untouched.
	Release(ctx context.Context, key string) error
}
