package entities

// Envelope frames every buffer a guest export hands back to the host.
// Payload holds the encoded result record when Error is nil.
type Envelope struct {
	_ struct{} `cbor:",toarray"`

	Error   *ErrorDetail `json:"error,omitempty"`
	Payload []byte       `json:"payload,omitempty"`
}

// Failed reports whether the envelope carries an error instead of a payload.
func (e Envelope) Failed() bool {
	return e.Error != nil
}
