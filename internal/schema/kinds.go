package schema

// Kind describes the engine-relevant schema of one resource kind: which
// attributes must be declared, which can change in place, and whether a
// reference to a replaced dependency can be re-pointed without replacing
// the resource itself.
type Kind struct {
	Name     string
	Provider string

	// Required attributes; a declaration missing any of them is rejected
	// before planning.
	Required []string

	// Updatable attributes can change without replacement. A changed
	// attribute outside this set forces delete+recreate.
	Updatable []string

	// Repointable kinds tolerate a dependency being replaced underneath
	// them; non-repointable kinds inherit the replacement.
	Repointable bool
}

var kinds = map[string]*Kind{
	"aws:EC2.Vpc": {
		Name:      "aws:EC2.Vpc",
		Provider:  "aws",
		Required:  []string{"cidrBlock"},
		Updatable: []string{"tags"},
	},
	"aws:EC2.Subnet": {
		Name:      "aws:EC2.Subnet",
		Provider:  "aws",
		Required:  []string{"vpcId", "cidrBlock"},
		Updatable: []string{"tags", "mapPublicIpOnLaunch"},
	},
	"aws:EC2.InternetGateway": {
		// A gateway cannot be moved to another network in place.
		Name:      "aws:EC2.InternetGateway",
		Provider:  "aws",
		Required:  []string{"vpcId"},
		Updatable: []string{"tags"},
	},
	"aws:EC2.NatGateway": {
		Name:      "aws:EC2.NatGateway",
		Provider:  "aws",
		Required:  []string{"subnetId", "allocationId"},
		Updatable: []string{"tags"},
	},
	"aws:EC2.ElasticIP": {
		Name:      "aws:EC2.ElasticIP",
		Provider:  "aws",
		Updatable: []string{"tags"},
	},
	"aws:EC2.RouteTable": {
		// Routes can be rewritten in place, so a replaced gateway does not
		// cascade into the table.
		Name:        "aws:EC2.RouteTable",
		Provider:    "aws",
		Required:    []string{"vpcId"},
		Updatable:   []string{"routes", "tags"},
		Repointable: true,
	},
	"aws:EC2.RouteTableAssociation": {
		Name:        "aws:EC2.RouteTableAssociation",
		Provider:    "aws",
		Required:    []string{"subnetId", "routeTableId"},
		Updatable:   []string{"routeTableId"},
		Repointable: true,
	},
	"aws:EC2.SecurityGroup": {
		Name:      "aws:EC2.SecurityGroup",
		Provider:  "aws",
		Required:  []string{"name", "vpcId"},
		Updatable: []string{"ingress", "egress", "tags"},
	},
	"aws:EC2.KeyPair": {
		Name:     "aws:EC2.KeyPair",
		Provider: "aws",
		Required: []string{"keyName"},
	},
	"aws:EC2.Instance": {
		Name:      "aws:EC2.Instance",
		Provider:  "aws",
		Required:  []string{"ami", "instanceType", "subnetId"},
		Updatable: []string{"tags"},
	},
	"local:File": {
		Name:      "local:File",
		Provider:  "local",
		Required:  []string{"path", "content"},
		Updatable: []string{"content", "mode"},
	},

	// In-memory kinds used by the sim provider and the test suites.
	"sim:Object": {
		Name:        "sim:Object",
		Provider:    "sim",
		Updatable:   []string{"data"},
		Repointable: true,
	},
	"sim:Pinned": {
		Name:     "sim:Pinned",
		Provider: "sim",
	},
}

// Lookup returns the schema for a kind name.
func Lookup(name string) (*Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Repointable reports whether a kind survives replacement of a dependency.
// Unknown kinds are conservatively treated as not repointable.
func Repointable(name string) bool {
	if k, ok := kinds[name]; ok {
		return k.Repointable
	}
	return false
}

// IsUpdatable reports whether an attribute of a kind can change in place.
func IsUpdatable(kind, attr string) bool {
	k, ok := kinds[kind]
	if !ok {
		return false
	}
	for _, a := range k.Updatable {
		if a == attr {
			return true
		}
	}
	return false
}
