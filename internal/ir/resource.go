package ir

// Resource represents a single declared infrastructure object.
type Resource struct {
	Type        string            `pkl:"type"` // e.g., "aws:EC2.Vpc"
	Name        string            `pkl:"name"`
	Provider    string            `pkl:"provider"`
	Lifecycle   *Lifecycle        `pkl:"lifecycle"`
	Provisioner *Provisioner      `pkl:"provisioner"`
	DependsOn   []string          `pkl:"dependsOn"`
	Count       int               `pkl:"count"`
	ForEach     map[string]string `pkl:"forEach"`
	Properties  map[string]any    `pkl:"properties"`
}

type Lifecycle struct {
	PreventDestroy bool     `pkl:"preventDestroy"`
	IgnoreChanges  []string `pkl:"ignoreChanges"`
}

// Provisioner is a post-create side effect tied to a resource: once the
// resource exists, a file is pushed onto it over SSH. Connection attempts
// are retried because a freshly launched instance is rarely reachable right
// away.
type Provisioner struct {
	User        string `pkl:"user"`
	Port        int    `pkl:"port"`
	Source      string `pkl:"source"`
	Destination string `pkl:"destination"`

	// KeyPair is the address of a generated key pair resource whose private
	// half authenticates the connection. PrivateKeyPath is the fallback when
	// the key was not generated in this run.
	KeyPair        string `pkl:"keyPair"`
	PrivateKeyPath string `pkl:"privateKeyPath"`

	// HostAttribute names the output holding the address to connect to.
	// Defaults to "public_ip".
	HostAttribute string `pkl:"hostAttribute"`

	MaxAttempts int `pkl:"maxAttempts"`

	// TeardownOnFailure deletes the resource again if provisioning fails.
	TeardownOnFailure bool `pkl:"teardownOnFailure"`
}
