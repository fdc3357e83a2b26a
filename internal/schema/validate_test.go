package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moat-io/moat/internal/ir"
)

func TestValidate_OK(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:EC2.Vpc", Name: "main", Provider: "aws",
			Properties: map[string]any{"cidrBlock": "10.0.0.0/16"}},
		{Type: "aws:EC2.Subnet", Name: "app", Provider: "aws",
			Properties: map[string]any{
				"vpcId":     "ptr://aws:EC2.Vpc/main/id",
				"cidrBlock": "10.0.1.0/24",
			}},
	}}
	require.NoError(t, Validate(cfg))
}

func TestValidate_UnknownKind(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:EC2.Mainframe", Name: "big", Provider: "aws", Properties: map[string]any{}},
	}}

	err := Validate(cfg)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Detail, "unknown resource kind")
}

func TestValidate_MissingRequiredAttribute(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:EC2.Vpc", Name: "main", Provider: "aws", Properties: map[string]any{}},
	}}

	err := Validate(cfg)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Detail, "cidrBlock")
}

func TestValidate_EmptyRequiredAttribute(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:EC2.Vpc", Name: "main", Provider: "aws",
			Properties: map[string]any{"cidrBlock": ""}},
	}}
	require.Error(t, Validate(cfg))
}

func TestValidate_DuplicateAddress(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "sim:Object", Name: "a", Provider: "sim", Properties: map[string]any{}},
		{Type: "sim:Object", Name: "a", Provider: "sim", Properties: map[string]any{}},
	}}

	err := Validate(cfg)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Detail, "duplicate")
}

func TestValidate_DanglingExplicitDependency(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "sim:Object", Name: "a", Provider: "sim",
			DependsOn: []string{"sim:Object.missing"}, Properties: map[string]any{}},
	}}

	err := Validate(cfg)
	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "sim:Object.a", refErr.Address)
	assert.Equal(t, "sim:Object.missing", refErr.Target)
}

func TestValidate_DanglingReference(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:EC2.Subnet", Name: "app", Provider: "aws",
			Properties: map[string]any{
				"vpcId":     "ptr://aws:EC2.Vpc/gone/id",
				"cidrBlock": "10.0.1.0/24",
			}},
	}}

	err := Validate(cfg)
	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "aws:EC2.Vpc.gone", refErr.Target)
}

func TestValidate_NestedReference(t *testing.T) {
	// References inside nested maps and lists are found too.
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "aws:EC2.RouteTable", Name: "public", Provider: "aws",
			Properties: map[string]any{
				"vpcId": "10.0.0.0/16",
				"routes": []any{
					map[string]any{
						"destinationCidrBlock": "0.0.0.0/0",
						"gatewayId":            "ptr://aws:EC2.InternetGateway/gone/id",
					},
				},
			}},
	}}

	err := Validate(cfg)
	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "aws:EC2.InternetGateway.gone", refErr.Target)
}

func TestRepointable(t *testing.T) {
	assert.True(t, Repointable("aws:EC2.RouteTable"))
	assert.False(t, Repointable("aws:EC2.Instance"))
	assert.False(t, Repointable("no:Such.Kind"))
}

func TestIsUpdatable(t *testing.T) {
	assert.True(t, IsUpdatable("aws:EC2.Subnet", "tags"))
	assert.False(t, IsUpdatable("aws:EC2.Subnet", "cidrBlock"))
	assert.False(t, IsUpdatable("no:Such.Kind", "tags"))
}
