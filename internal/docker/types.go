package docker

// ContainerRef identifies a running container
type ContainerRef struct {
	ID   string
	Name string // without the leading slash
}

// Attributes contains the inspected metadata needed to build a container record
type Attributes struct {
	Status    string        // running, paused, etc. Empty if not reported.
	Health    string        // healthy, unhealthy, starting. Empty if no healthcheck.
	StartedAt string        // RFC 3339 timestamp as reported by the daemon
	Ports     []PortBinding // published bindings in discovery order
}

// PortBinding is a single container port published on the host
type PortBinding struct {
	ContainerPort int
	Proto         string // tcp, udp, sctp
	HostIP        string
	HostPort      int
}
