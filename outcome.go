package accounts

// FailureReason classifies an authentication attempt
type FailureReason string

const (
	ReasonOK             FailureReason = "ok"
	ReasonBadCredentials FailureReason = "bad-credentials"
	ReasonLockedOut      FailureReason = "locked-out"
	ReasonNotAllowed     FailureReason = "not-allowed"
)

// AuthenticationOutcome is built fresh for every attempt and never persisted.
// Principal is set only when Succeeded is true.
type AuthenticationOutcome struct {
	Succeeded bool
	Reason    FailureReason
	Principal *Principal
}

func success(p Principal) AuthenticationOutcome {
	return AuthenticationOutcome{
		Succeeded: true,
		Reason:    ReasonOK,
		Principal: &p,
	}
}

func failure(reason FailureReason) AuthenticationOutcome {
	return AuthenticationOutcome{Reason: reason}
}

// Err maps a failed outcome to its sentinel error, nil on success
func (o AuthenticationOutcome) Err() error {
	if o.Succeeded {
		return nil
	}
	switch o.Reason {
	case ReasonLockedOut:
		return ErrLockedOut
	case ReasonNotAllowed:
		return ErrNotAllowed
	default:
		return ErrBadCredentials
	}
}
