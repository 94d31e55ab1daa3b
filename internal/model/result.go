package model

// ExtractionStatus is the discriminator of an ExtractionResult.
type ExtractionStatus string

const (
	StatusSuccess          ExtractionStatus = "success"
	StatusRequiresLocation ExtractionStatus = "requires_location"
	StatusRejected         ExtractionStatus = "rejected"
)

// RejectReason is the caller-visible reason for a rejected extraction.
// Cryptographic and corruption failures all collapse into ReasonInvalidPassword.
type RejectReason string

const (
	ReasonNotYetAvailable RejectReason = "not_yet_available"
	ReasonOutOfRange      RejectReason = "out_of_range"
	ReasonInvalidPassword RejectReason = "invalid_password"
)

// ExtractionResult is the outcome of one Extract call.
type ExtractionResult struct {
	Status    ExtractionStatus `json:"status"`
	Plaintext []byte           `json:"-"`
	Reason    RejectReason     `json:"reason,omitempty"`
}

// Success builds a successful result carrying the recovered plaintext.
func Success(plaintext []byte) *ExtractionResult {
	return &ExtractionResult{Status: StatusSuccess, Plaintext: plaintext}
}

// RequiresLocation builds the signal asking the caller to resubmit with coordinates.
func RequiresLocation() *ExtractionResult {
	return &ExtractionResult{Status: StatusRequiresLocation}
}

// Rejected builds a terminal rejection.
func Rejected(reason RejectReason) *ExtractionResult {
	return &ExtractionResult{Status: StatusRejected, Reason: reason}
}
