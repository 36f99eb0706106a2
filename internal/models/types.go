package models

import "time"

// OpType identifies a mutating marketplace operation.
type OpType string

const (
	OpMint       OpType = "mint"
	OpSetPrice   OpType = "set_price"
	OpBuy        OpType = "buy"
	OpCancelSale OpType = "cancel_sale"
)

// TxStatus is the lifecycle state of a submitted operation.
// A record transitions into confirmed or failed exactly once.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// Artwork is one token on the ledger. Title, artist and description are
// immutable after mint; owner, for_sale and price change only as effects
// of confirmed operations. Prices are in the smallest ledger unit.
type Artwork struct {
	TokenID     int64  `json:"token_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	ForSale     bool   `json:"for_sale"`
	Price       int64  `json:"price"`
}

// TxRecord is the immutable record of one attempted mutating operation.
// LedgerRef is empty until the ledger accepts the submission. For mints,
// TokenID is zero until confirmation assigns the new id.
type TxRecord struct {
	ID        int64     `json:"id"`
	Op        OpType    `json:"operation"`
	TokenID   int64     `json:"token_id,omitempty"`
	Submitter string    `json:"submitter"`
	Status    TxStatus  `json:"status"`
	LedgerRef string    `json:"ledger_reference,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MintRequest is the payload for minting a new artwork.
type MintRequest struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Description string `json:"description"`
	Submitter   string `json:"submitter"`
}

// SetPriceRequest lists an artwork for sale at the given price.
type SetPriceRequest struct {
	TokenID   int64  `json:"token_id"`
	Price     int64  `json:"price"`
	Submitter string `json:"submitter"`
}

// BuyRequest purchases a listed artwork. AttachedValue must equal the
// listed price exactly.
type BuyRequest struct {
	TokenID       int64  `json:"token_id"`
	Submitter     string `json:"submitter"`
	AttachedValue int64  `json:"attached_value"`
}

// CancelSaleRequest delists an artwork.
type CancelSaleRequest struct {
	TokenID   int64  `json:"token_id"`
	Submitter string `json:"submitter"`
}

// SubmitResponse acknowledges that an operation was accepted by the
// ledger. It does not imply confirmation; callers follow up via the
// transactions endpoint keyed by ledger_reference.
type SubmitResponse struct {
	LedgerRef string   `json:"ledger_reference"`
	Status    TxStatus `json:"status"`
}
