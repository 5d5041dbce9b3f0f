package syncer

// Connectivity tells the service whether a call may reach the remote store.
type Connectivity int

const (
	// Offline restricts the call to local state.
	Offline Connectivity = iota
	// Online allows remote propagation and reconciliation.
	Online
)

func (c Connectivity) String() string {
	if c == Online {
		return "online"
	}
	return "offline"
}

// ConnectivityFromOffline maps an "offline" switch to a Connectivity value.
func ConnectivityFromOffline(offline bool) Connectivity {
	if offline {
		return Offline
	}
	return Online
}
