package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/moat-io/moat/internal/ir"
	"github.com/moat-io/moat/internal/provision"
)

func TestPrepareKeyPair_GeneratesAndStrips(t *testing.T) {
	eng, _ := newTestEngine(t)

	res := &ir.Resource{Type: "aws:EC2.KeyPair", Name: "deploy", Provider: "sim"}
	props := map[string]any{
		"keyName":  "deploy",
		"generate": true,
		"bits":     2048,
	}

	out, err := eng.prepareKeyPair("aws:EC2.KeyPair.deploy", res, props, func(string) {})
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.NotContains(t, out, "generate")
	assert.NotContains(t, out, "bits")
	pub, ok := out["publicKey"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(pub, "ssh-rsa "))

	key, ok := eng.keys.Get("aws:EC2.KeyPair.deploy")
	require.True(t, ok)
	assert.Contains(t, string(key), "RSA PRIVATE KEY")

	// The original map is untouched.
	assert.Contains(t, props, "generate")
}

func TestPrepareKeyPair_WritesPrivateKey(t *testing.T) {
	eng, _ := newTestEngine(t)
	keyPath := filepath.Join(t.TempDir(), "keys", "deploy.pem")

	res := &ir.Resource{Type: "aws:EC2.KeyPair", Name: "deploy", Provider: "sim"}
	props := map[string]any{
		"keyName":        "deploy",
		"generate":       true,
		"bits":           2048,
		"privateKeyPath": keyPath,
	}

	out, err := eng.prepareKeyPair("aws:EC2.KeyPair.deploy", res, props, func(string) {})
	require.NoError(t, err)
	assert.NotContains(t, out, "privateKeyPath")

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestPrepareKeyPair_IgnoresOtherResources(t *testing.T) {
	eng, _ := newTestEngine(t)

	res := simObject("net", nil)
	out, err := eng.prepareKeyPair("sim:Object.net", res, map[string]any{"generate": true}, func(string) {})
	require.NoError(t, err)
	assert.Nil(t, out)

	kp := &ir.Resource{Type: "aws:EC2.KeyPair", Name: "imported", Provider: "sim"}
	out, err = eng.prepareKeyPair("aws:EC2.KeyPair.imported", kp, map[string]any{"keyName": "imported"}, func(string) {})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func provisionedConfig(teardown bool) *ir.Config {
	return &ir.Config{Resources: []*ir.Resource{
		{
			Type: "aws:EC2.KeyPair", Name: "deploy", Provider: "sim",
			Properties: map[string]any{"keyName": "deploy", "generate": true, "bits": 2048},
		},
		{
			Type: "aws:EC2.Instance", Name: "web", Provider: "sim",
			DependsOn: []string{"aws:EC2.KeyPair.deploy"},
			Properties: map[string]any{
				"ami": "ami-123", "instanceType": "t3.micro", "subnetId": "subnet-1",
			},
			Provisioner: &ir.Provisioner{
				User:              "ec2-user",
				Source:            "setup.sh",
				Destination:       "/opt/setup.sh",
				KeyPair:           "aws:EC2.KeyPair.deploy",
				MaxAttempts:       2,
				TeardownOnFailure: teardown,
			},
		},
	}}
}

func TestApplyPlan_ProvisionerTimeout(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.Provisioner = provision.NewRunnerWithDial(
		func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
			return nil, errors.New("connection refused")
		})

	ctx := context.Background()
	cfg := provisionedConfig(false)
	plan, err := eng.CreatePlan(ctx, cfg, &ir.State{Version: 1})
	require.NoError(t, err)

	newState, report, err := eng.ApplyPlan(ctx, plan, &ir.State{Version: 1})
	require.NoError(t, err)

	// The key pair converged; only the instance failed, at the
	// provisioning step.
	assert.Equal(t, ir.StatusSucceeded, report.Result("aws:EC2.KeyPair.deploy").Status)
	res := report.Result("aws:EC2.Instance.web")
	require.NotNil(t, res)
	assert.Equal(t, ir.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "provisioning failed")
	assert.Contains(t, res.Error, "2 attempts")

	// Without teardown the instance stays in state, but tainted: the
	// machine exists and is unconfigured, so the next plan recreates it.
	rs := newState.Lookup("aws:EC2.Instance.web")
	require.NotNil(t, rs)
	assert.True(t, rs.Tainted())

	replan, err := eng.CreatePlan(ctx, cfg, newState)
	require.NoError(t, err)
	change := replan.Change("aws:EC2.Instance.web")
	require.NotNil(t, change)
	assert.Equal(t, "REPLACE", change.Action)
}

func TestApplyPlan_UpdateSkipsProvisioner(t *testing.T) {
	eng, _ := newTestEngine(t)
	var dialed atomic.Bool
	eng.Provisioner = provision.NewRunnerWithDial(
		func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
			dialed.Store(true)
			return nil, errors.New("connection refused")
		})

	ctx := context.Background()
	cfg := provisionedConfig(false)
	cfg.Resources[1].Properties["tags"] = map[string]any{"env": "prod"}

	state := &ir.State{Version: 1, Resources: []*ir.ResourceState{
		appliedState("aws:EC2.KeyPair.deploy",
			map[string]any{"keyName": "deploy"},
			map[string]any{"id": "sim-deploy", "keyName": "deploy", "publicKey": "ssh-rsa AAAA"}),
		appliedState("aws:EC2.Instance.web",
			map[string]any{"ami": "ami-123", "instanceType": "t3.micro", "subnetId": "subnet-1"},
			map[string]any{"id": "sim-web", "ami": "ami-123", "instanceType": "t3.micro",
				"subnetId": "subnet-1", "public_ip": "192.0.2.10"},
			"aws:EC2.KeyPair.deploy"),
	}}

	plan, err := eng.CreatePlan(ctx, cfg, state)
	require.NoError(t, err)
	change := plan.Change("aws:EC2.Instance.web")
	require.NotNil(t, change)
	require.Equal(t, "UPDATE", change.Action)

	// Provisioning is tied to creation; retagging never touches SSH.
	_, report, err := eng.ApplyPlan(ctx, plan, state)
	require.NoError(t, err)
	assert.False(t, report.HasFailures())
	assert.False(t, dialed.Load())
}

func TestApplyPlan_ProvisionerTeardownOnFailure(t *testing.T) {
	eng, sim := newTestEngine(t)
	eng.Provisioner = provision.NewRunnerWithDial(
		func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
			return nil, errors.New("connection refused")
		})

	ctx := context.Background()
	cfg := provisionedConfig(true)
	plan, err := eng.CreatePlan(ctx, cfg, &ir.State{Version: 1})
	require.NoError(t, err)

	newState, report, err := eng.ApplyPlan(ctx, plan, &ir.State{Version: 1})
	require.NoError(t, err)

	assert.Equal(t, ir.StatusFailed, report.Result("aws:EC2.Instance.web").Status)
	assert.Nil(t, newState.Lookup("aws:EC2.Instance.web"))
	assert.Nil(t, sim.Applied("aws:EC2.Instance.web"))
}

func TestApplyPlan_KeyPairSecretsStayOutOfState(t *testing.T) {
	eng, sim := newTestEngine(t)
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		{
			Type: "aws:EC2.KeyPair", Name: "deploy", Provider: "sim",
			Properties: map[string]any{"keyName": "deploy", "generate": true, "bits": 2048},
		},
	}}
	plan, err := eng.CreatePlan(ctx, cfg, &ir.State{Version: 1})
	require.NoError(t, err)
	newState, report, err := eng.ApplyPlan(ctx, plan, &ir.State{Version: 1})
	require.NoError(t, err)
	require.False(t, report.HasFailures())

	// The provider saw only the public half.
	applied := sim.Applied("aws:EC2.KeyPair.deploy")
	require.NotNil(t, applied)
	assert.NotContains(t, applied, "generate")
	assert.Contains(t, applied["publicKey"], "ssh-rsa ")

	rs := newState.Lookup("aws:EC2.KeyPair.deploy")
	require.NotNil(t, rs)
	for _, vals := range []map[string]any{rs.Inputs, rs.Outputs} {
		for k, v := range vals {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "PRIVATE KEY", "attribute %s leaks key material", k)
			}
		}
	}
}
