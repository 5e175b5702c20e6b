package user

// AuthorizationRequest is a typed capability question put to a user's
// authority chain. The set is closed; each concrete request carries the
// facts an authority needs to decide.
type AuthorizationRequest interface {
	authorizationRequest()
}

// Authority is one capability grant. Grant returns nil when the request
// is denied or not recognized; otherwise it returns the request, possibly
// decorated with the effective limits the grant imposes.
type Authority interface {
	Grant(req AuthorizationRequest) AuthorizationRequest
}

// ConcurrentBindRequest asks whether a bind attempt may proceed. Binds
// and BindsFromAddr are the counts the user would reach if the attempt
// were admitted. A granting authority fills in the Max fields it
// enforced (0 = unlimited).
type ConcurrentBindRequest struct {
	Name            string
	Addr            string
	Binds           int64
	BindsFromAddr   int64
	MaxBinds        int64
	MaxBindsPerAddr int64
}

func (*ConcurrentBindRequest) authorizationRequest() {}

// ConcurrentBindPermission grants bind attempts up to MaxBinds total
// sessions and MaxBindsPerAddr sessions from one source address. Both
// bounds are inclusive; zero means unlimited.
type ConcurrentBindPermission struct {
	MaxBinds        int64
	MaxBindsPerAddr int64
}

func (p ConcurrentBindPermission) Grant(req AuthorizationRequest) AuthorizationRequest {
	cbr, ok := req.(*ConcurrentBindRequest)
	if !ok {
		// Not a request type this authority recognizes.
		return nil
	}
	if p.MaxBinds != 0 && cbr.Binds > p.MaxBinds {
		return nil
	}
	if p.MaxBindsPerAddr != 0 && cbr.BindsFromAddr > p.MaxBindsPerAddr {
		return nil
	}
	granted := *cbr
	granted.MaxBinds = p.MaxBinds
	granted.MaxBindsPerAddr = p.MaxBindsPerAddr
	return &granted
}
