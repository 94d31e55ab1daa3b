package model

import "time"

// OperationKind names the public operation an audit record belongs to.
type OperationKind string

const (
	OperationHide    OperationKind = "hide"
	OperationExtract OperationKind = "extract"
)

// Operation is an audit record of a single Hide or Extract call.
// It never carries secrets: no plaintext, password, coordinates or image bytes.
type Operation struct {
	ID            string        `json:"id"`
	Kind          OperationKind `json:"kind"`
	Outcome       string        `json:"outcome"`
	RequestID     string        `json:"request_id"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	EnvelopeBytes int           `json:"envelope_bytes"`
	TimeLocked    bool          `json:"time_locked"`
	GeoLocked     bool          `json:"geo_locked"`
	CreatedAt     time.Time     `json:"created_at"`
}
