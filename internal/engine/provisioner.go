package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/moat-io/moat/internal/ir"
	"github.com/moat-io/moat/internal/keygen"
	"github.com/moat-io/moat/internal/logging"
	"github.com/moat-io/moat/internal/provision"
)

const keyPairType = "aws:EC2.KeyPair"

// prepareKeyPair intercepts key pair resources marked generate: true. The
// key is minted locally, the public half replaces the generate marker in
// the provider config, and the private half goes into the in-memory store
// and optionally onto disk. Private material never reaches the provider or
// the state file.
func (e *Engine) prepareKeyPair(addr string, res *ir.Resource, props map[string]any, warn func(string)) (map[string]any, error) {
	if res.Type != keyPairType {
		return nil, nil
	}
	generate, _ := props["generate"].(bool)
	if !generate {
		return nil, nil
	}

	kp, err := keygen.Generate(intProp(props, "bits"))
	if err != nil {
		return nil, fmt.Errorf("key generation failed for %s: %w", addr, err)
	}
	e.keys.Put(addr, kp.PrivateKeyPEM)

	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	delete(out, "generate")
	delete(out, "bits")
	out["publicKey"] = string(kp.PublicKey)

	if path, ok := out["privateKeyPath"].(string); ok && path != "" {
		delete(out, "privateKeyPath")
		warning, err := kp.WritePrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("failed to persist private key for %s: %w", addr, err)
		}
		if warning != "" {
			warn(warning)
		}
	}

	logging.Debug("generated key pair", "address", addr)
	return out, nil
}

// planProperties returns the properties a provider should see at plan time.
// Key generation markers are engine-side instructions, not provider
// attributes, so a generated key pair is compared by its stable keyName
// only and replans as a no-op.
func planProperties(res *ir.Resource) map[string]any {
	if res.Type != keyPairType {
		return res.Properties
	}
	if generate, _ := res.Properties["generate"].(bool); !generate {
		return res.Properties
	}
	out := make(map[string]any, len(res.Properties))
	for k, v := range res.Properties {
		switch k {
		case "generate", "bits", "privateKeyPath":
			continue
		}
		out[k] = v
	}
	return out
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// runProvisioner pushes the configured file onto the freshly created
// resource. The private key comes from the in-memory store when the key
// pair was generated this run, otherwise from disk.
func (r *applyRun) runProvisioner(ctx context.Context, change *ir.ResourceChange, outputs map[string]any) error {
	p := change.Desired.Provisioner

	hostAttr := p.HostAttribute
	if hostAttr == "" {
		hostAttr = "public_ip"
	}
	host, _ := outputs[hostAttr].(string)
	if host == "" {
		return fmt.Errorf("resource %s has no %q output to connect to", change.Address, hostAttr)
	}

	key, err := r.privateKeyFor(p)
	if err != nil {
		return err
	}

	runner := r.engine.Provisioner
	if runner == nil {
		runner = provision.NewRunner()
	}

	logging.Info("provisioning", "address", change.Address, "host", host)
	return runner.Run(ctx, &provision.Request{
		Host:          host,
		Port:          p.Port,
		User:          p.User,
		Source:        p.Source,
		Destination:   p.Destination,
		PrivateKeyPEM: key,
		MaxAttempts:   p.MaxAttempts,
	})
}

func (r *applyRun) privateKeyFor(p *ir.Provisioner) ([]byte, error) {
	if p.KeyPair != "" {
		if key, ok := r.engine.keys.Get(p.KeyPair); ok {
			return key, nil
		}
	}
	if p.PrivateKeyPath != "" {
		key, err := os.ReadFile(p.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		return key, nil
	}
	if p.KeyPair != "" {
		return nil, fmt.Errorf("key pair %s was not generated in this run and no privateKeyPath is set", p.KeyPair)
	}
	return nil, fmt.Errorf("provisioner has no key pair or private key path")
}
