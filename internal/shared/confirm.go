package shared

// Confirmation is the explicit irreversible-action acknowledgement required
// by every destructive admin operation. The prompt that collects it lives in
// the UI; the services only check that it was given.
type Confirmation struct {
	Acknowledged bool `json:"acknowledged"`
}

// Require returns ErrConfirmationRequired unless the acknowledgement was given.
func (c Confirmation) Require() error {
	if !c.Acknowledged {
		return ErrConfirmationRequired
	}
	return nil
}
