package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moat-io/moat/pkg/provider"
)

func str(s string) *string { return &s }

// fakeEC2 satisfies EC2API with canned responses and records the calls it
// receives.
type fakeEC2 struct {
	calls []string

	runInstancesInput *ec2.RunInstancesInput
	createVpcErr      error
	revokedIngress    *ec2.RevokeSecurityGroupIngressInput
	authorizedIngress *ec2.AuthorizeSecurityGroupIngressInput
	detachedIGW       *ec2.DetachInternetGatewayInput
	modifiedSubnet    *ec2.ModifySubnetAttributeInput
}

func (f *fakeEC2) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeEC2) CreateVpc(ctx context.Context, in *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	f.record("CreateVpc")
	if f.createVpcErr != nil {
		return nil, f.createVpcErr
	}
	return &ec2.CreateVpcOutput{Vpc: &types.Vpc{VpcId: str("vpc-123"), CidrBlock: in.CidrBlock}}, nil
}

func (f *fakeEC2) DeleteVpc(ctx context.Context, in *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	f.record("DeleteVpc")
	return &ec2.DeleteVpcOutput{}, nil
}

func (f *fakeEC2) CreateSubnet(ctx context.Context, in *ec2.CreateSubnetInput, _ ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	f.record("CreateSubnet")
	return &ec2.CreateSubnetOutput{Subnet: &types.Subnet{SubnetId: str("subnet-123"), VpcId: in.VpcId}}, nil
}

func (f *fakeEC2) DeleteSubnet(ctx context.Context, in *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	f.record("DeleteSubnet")
	return &ec2.DeleteSubnetOutput{}, nil
}

func (f *fakeEC2) ModifySubnetAttribute(ctx context.Context, in *ec2.ModifySubnetAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error) {
	f.record("ModifySubnetAttribute")
	f.modifiedSubnet = in
	return &ec2.ModifySubnetAttributeOutput{}, nil
}

func (f *fakeEC2) CreateInternetGateway(ctx context.Context, in *ec2.CreateInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	f.record("CreateInternetGateway")
	return &ec2.CreateInternetGatewayOutput{InternetGateway: &types.InternetGateway{InternetGatewayId: str("igw-123")}}, nil
}

func (f *fakeEC2) AttachInternetGateway(ctx context.Context, in *ec2.AttachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	f.record("AttachInternetGateway")
	return &ec2.AttachInternetGatewayOutput{}, nil
}

func (f *fakeEC2) DetachInternetGateway(ctx context.Context, in *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	f.record("DetachInternetGateway")
	f.detachedIGW = in
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (f *fakeEC2) DeleteInternetGateway(ctx context.Context, in *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	f.record("DeleteInternetGateway")
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (f *fakeEC2) AllocateAddress(ctx context.Context, in *ec2.AllocateAddressInput, _ ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error) {
	f.record("AllocateAddress")
	return &ec2.AllocateAddressOutput{AllocationId: str("eipalloc-123"), PublicIp: str("198.51.100.7")}, nil
}

func (f *fakeEC2) ReleaseAddress(ctx context.Context, in *ec2.ReleaseAddressInput, _ ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error) {
	f.record("ReleaseAddress")
	return &ec2.ReleaseAddressOutput{}, nil
}

func (f *fakeEC2) CreateNatGateway(ctx context.Context, in *ec2.CreateNatGatewayInput, _ ...func(*ec2.Options)) (*ec2.CreateNatGatewayOutput, error) {
	f.record("CreateNatGateway")
	return &ec2.CreateNatGatewayOutput{NatGateway: &types.NatGateway{NatGatewayId: str("nat-123")}}, nil
}

func (f *fakeEC2) DeleteNatGateway(ctx context.Context, in *ec2.DeleteNatGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error) {
	f.record("DeleteNatGateway")
	return &ec2.DeleteNatGatewayOutput{}, nil
}

func (f *fakeEC2) CreateRouteTable(ctx context.Context, in *ec2.CreateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	f.record("CreateRouteTable")
	return &ec2.CreateRouteTableOutput{RouteTable: &types.RouteTable{RouteTableId: str("rtb-123")}}, nil
}

func (f *fakeEC2) DeleteRouteTable(ctx context.Context, in *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	f.record("DeleteRouteTable")
	return &ec2.DeleteRouteTableOutput{}, nil
}

func (f *fakeEC2) CreateRoute(ctx context.Context, in *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	f.record("CreateRoute")
	return &ec2.CreateRouteOutput{}, nil
}

func (f *fakeEC2) DeleteRoute(ctx context.Context, in *ec2.DeleteRouteInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	f.record("DeleteRoute")
	return &ec2.DeleteRouteOutput{}, nil
}

func (f *fakeEC2) DescribeRouteTables(ctx context.Context, in *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	f.record("DescribeRouteTables")
	return &ec2.DescribeRouteTablesOutput{RouteTables: []types.RouteTable{{
		RouteTableId: str("rtb-123"),
		Routes: []types.Route{
			{GatewayId: str("local"), DestinationCidrBlock: str("10.0.0.0/16")},
			{GatewayId: str("igw-old"), DestinationCidrBlock: str("0.0.0.0/0")},
		},
	}}}, nil
}

func (f *fakeEC2) AssociateRouteTable(ctx context.Context, in *ec2.AssociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	f.record("AssociateRouteTable")
	return &ec2.AssociateRouteTableOutput{AssociationId: str("rtbassoc-123")}, nil
}

func (f *fakeEC2) ReplaceRouteTableAssociation(ctx context.Context, in *ec2.ReplaceRouteTableAssociationInput, _ ...func(*ec2.Options)) (*ec2.ReplaceRouteTableAssociationOutput, error) {
	f.record("ReplaceRouteTableAssociation")
	return &ec2.ReplaceRouteTableAssociationOutput{NewAssociationId: str("rtbassoc-456")}, nil
}

func (f *fakeEC2) DisassociateRouteTable(ctx context.Context, in *ec2.DisassociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error) {
	f.record("DisassociateRouteTable")
	return &ec2.DisassociateRouteTableOutput{}, nil
}

func (f *fakeEC2) CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	f.record("CreateSecurityGroup")
	return &ec2.CreateSecurityGroupOutput{GroupId: str("sg-123")}, nil
}

func (f *fakeEC2) DeleteSecurityGroup(ctx context.Context, in *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	f.record("DeleteSecurityGroup")
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.record("AuthorizeSecurityGroupIngress")
	f.authorizedIngress = in
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupEgress(ctx context.Context, in *ec2.AuthorizeSecurityGroupEgressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupEgressOutput, error) {
	f.record("AuthorizeSecurityGroupEgress")
	return &ec2.AuthorizeSecurityGroupEgressOutput{}, nil
}

func (f *fakeEC2) RevokeSecurityGroupIngress(ctx context.Context, in *ec2.RevokeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	f.record("RevokeSecurityGroupIngress")
	f.revokedIngress = in
	return &ec2.RevokeSecurityGroupIngressOutput{}, nil
}

func (f *fakeEC2) RevokeSecurityGroupEgress(ctx context.Context, in *ec2.RevokeSecurityGroupEgressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupEgressOutput, error) {
	f.record("RevokeSecurityGroupEgress")
	return &ec2.RevokeSecurityGroupEgressOutput{}, nil
}

func (f *fakeEC2) ImportKeyPair(ctx context.Context, in *ec2.ImportKeyPairInput, _ ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error) {
	f.record("ImportKeyPair")
	return &ec2.ImportKeyPairOutput{KeyPairId: str("key-123"), KeyName: in.KeyName}, nil
}

func (f *fakeEC2) DeleteKeyPair(ctx context.Context, in *ec2.DeleteKeyPairInput, _ ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error) {
	f.record("DeleteKeyPair")
	return &ec2.DeleteKeyPairOutput{}, nil
}

func (f *fakeEC2) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.record("RunInstances")
	f.runInstancesInput = in
	return &ec2.RunInstancesOutput{Instances: []types.Instance{{InstanceId: str("i-123")}}}, nil
}

func (f *fakeEC2) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.record("TerminateInstances")
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.record("DescribeInstances")
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{
		Instances: []types.Instance{{
			InstanceId:       str("i-123"),
			PublicIpAddress:  str("203.0.113.10"),
			PrivateIpAddress: str("10.0.1.20"),
		}},
	}}}, nil
}

func (f *fakeEC2) CreateTags(ctx context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.record("CreateTags")
	return &ec2.CreateTagsOutput{}, nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestApplyVpc(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	resp, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.Vpc", Name: "main",
		DesiredConfigJSON: mustJSON(t, VpcConfig{CidrBlock: "10.0.0.0/16", Tags: map[string]string{"env": "test"}}),
	})
	require.NoError(t, err)

	var state VpcState
	require.NoError(t, json.Unmarshal(resp.NewStateJSON, &state))
	assert.Equal(t, "vpc-123", state.ID)
	assert.Equal(t, "10.0.0.0/16", state.CidrBlock)
	assert.Contains(t, fake.calls, "CreateTags")
}

func TestApplyVpc_UpdateOnlyTags(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	prior := mustJSON(t, VpcState{ID: "vpc-123", CidrBlock: "10.0.0.0/16"})
	resp, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.Vpc", Name: "main",
		DesiredConfigJSON: mustJSON(t, VpcConfig{CidrBlock: "10.0.0.0/16", Tags: map[string]string{"env": "prod"}}),
		PriorStateJSON:    prior,
	})
	require.NoError(t, err)
	assert.Equal(t, prior, resp.NewStateJSON)
	assert.NotContains(t, fake.calls, "CreateVpc")
	assert.Contains(t, fake.calls, "CreateTags")
}

func TestApplySubnet_MapPublicIP(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	resp, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.Subnet", Name: "public",
		DesiredConfigJSON: mustJSON(t, SubnetConfig{
			VpcID: "vpc-123", CidrBlock: "10.0.1.0/24", MapPublicIpOnLaunch: true,
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, fake.modifiedSubnet)
	assert.Equal(t, "subnet-123", *fake.modifiedSubnet.SubnetId)

	var state SubnetState
	require.NoError(t, json.Unmarshal(resp.NewStateJSON, &state))
	assert.True(t, state.MapPublicIpOnLaunch)
}

func TestDeleteInternetGateway_DetachesFirst(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	err := p.Delete(context.Background(), &provider.DeleteRequest{
		Type:             "aws:EC2.InternetGateway",
		CurrentStateJSON: mustJSON(t, InternetGatewayState{ID: "igw-123", VpcID: "vpc-123"}),
	})
	require.NoError(t, err)
	require.NotNil(t, fake.detachedIGW)
	assert.Equal(t, "vpc-123", *fake.detachedIGW.VpcId)
	assert.Equal(t, []string{"DetachInternetGateway", "DeleteInternetGateway"}, fake.calls)
}

func TestApplyRouteTable_UpdateRewritesRoutes(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	_, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.RouteTable", Name: "public",
		DesiredConfigJSON: mustJSON(t, RouteTableConfig{
			VpcID:  "vpc-123",
			Routes: []RouteConfig{{DestinationCidrBlock: "0.0.0.0/0", GatewayID: str("igw-new")}},
		}),
		PriorStateJSON: mustJSON(t, RouteTableState{ID: "rtb-123", VpcID: "vpc-123"}),
	})
	require.NoError(t, err)

	// The stale route goes, the local route stays, the new one lands.
	assert.Equal(t, []string{"DescribeRouteTables", "DeleteRoute", "CreateRoute"}, fake.calls)
}

func TestApplyRouteTableAssociation_Repoint(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	resp, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.RouteTableAssociation", Name: "public",
		DesiredConfigJSON: mustJSON(t, RouteTableAssociationConfig{SubnetID: "subnet-123", RouteTableID: "rtb-456"}),
		PriorStateJSON:    mustJSON(t, RouteTableAssociationState{ID: "rtbassoc-123", SubnetID: "subnet-123", RouteTableID: "rtb-123"}),
	})
	require.NoError(t, err)

	var state RouteTableAssociationState
	require.NoError(t, json.Unmarshal(resp.NewStateJSON, &state))
	assert.Equal(t, "rtbassoc-456", state.ID)
	assert.Equal(t, []string{"ReplaceRouteTableAssociation"}, fake.calls)
}

func TestApplySecurityGroup_UpdateSwapsRules(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	oldRule := SecurityGroupRule{FromPort: 22, ToPort: 22, Protocol: "tcp", CidrBlocks: []string{"0.0.0.0/0"}}
	newRule := SecurityGroupRule{FromPort: 443, ToPort: 443, Protocol: "tcp", CidrBlocks: []string{"0.0.0.0/0"}}

	resp, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.SecurityGroup", Name: "web",
		DesiredConfigJSON: mustJSON(t, SecurityGroupConfig{
			Name: "web", VpcID: "vpc-123", Ingress: []SecurityGroupRule{newRule},
		}),
		PriorStateJSON: mustJSON(t, SecurityGroupState{
			ID: "sg-123", Name: "web", Ingress: []SecurityGroupRule{oldRule},
		}),
	})
	require.NoError(t, err)

	require.NotNil(t, fake.revokedIngress)
	assert.Equal(t, int32(22), *fake.revokedIngress.IpPermissions[0].FromPort)
	require.NotNil(t, fake.authorizedIngress)
	assert.Equal(t, int32(443), *fake.authorizedIngress.IpPermissions[0].FromPort)

	var state SecurityGroupState
	require.NoError(t, json.Unmarshal(resp.NewStateJSON, &state))
	assert.Equal(t, "sg-123", state.ID)
	assert.Equal(t, []SecurityGroupRule{newRule}, state.Ingress)
}

func TestApplyKeyPair_RequiresPublicKey(t *testing.T) {
	p := NewWithClient(&fakeEC2{})
	_, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.KeyPair", Name: "deploy",
		DesiredConfigJSON: mustJSON(t, KeyPairConfig{KeyName: "deploy"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key")
}

func TestApplyInstance(t *testing.T) {
	fake := &fakeEC2{}
	p := NewWithClient(fake)

	resp, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.Instance", Name: "web",
		DesiredConfigJSON: mustJSON(t, InstanceConfig{
			AMI: "ami-123", InstanceType: "t3.micro", SubnetID: "subnet-123", KeyName: "deploy",
		}),
	})
	require.NoError(t, err)

	require.NotNil(t, fake.runInstancesInput)
	assert.Equal(t, "ami-123", *fake.runInstancesInput.ImageId)
	assert.Equal(t, "deploy", *fake.runInstancesInput.KeyName)

	var state InstanceState
	require.NoError(t, json.Unmarshal(resp.NewStateJSON, &state))
	assert.Equal(t, "i-123", state.ID)
	assert.Equal(t, "203.0.113.10", state.PublicIP)
	assert.Equal(t, "10.0.1.20", state.PrivateIP)
}

func TestPlanInstance(t *testing.T) {
	p := NewWithClient(&fakeEC2{})
	ctx := context.Background()

	desired := mustJSON(t, InstanceConfig{AMI: "ami-123", InstanceType: "t3.micro", SubnetID: "subnet-1"})

	resp, err := p.Plan(ctx, &provider.PlanRequest{Type: "aws:EC2.Instance", Name: "web", DesiredConfigJSON: desired})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionCreate, resp.Action)

	prior := mustJSON(t, InstanceState{ID: "i-123", AMI: "ami-123", InstanceType: "t3.micro", SubnetID: "subnet-1"})
	resp, err = p.Plan(ctx, &provider.PlanRequest{Type: "aws:EC2.Instance", Name: "web", DesiredConfigJSON: desired, PriorStateJSON: prior})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionNoOp, resp.Action)

	// A new image means a new machine.
	changedAMI := mustJSON(t, InstanceConfig{AMI: "ami-456", InstanceType: "t3.micro", SubnetID: "subnet-1"})
	resp, err = p.Plan(ctx, &provider.PlanRequest{Type: "aws:EC2.Instance", Name: "web", DesiredConfigJSON: changedAMI, PriorStateJSON: prior})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionReplace, resp.Action)
	assert.Equal(t, []string{"ami"}, resp.ChangedAttributes)
}

func TestPlanGeneric_IgnoresProviderOutputs(t *testing.T) {
	p := NewWithClient(&fakeEC2{})

	desired := mustJSON(t, map[string]any{"cidrBlock": "10.0.0.0/16"})
	prior := mustJSON(t, VpcState{ID: "vpc-123", CidrBlock: "10.0.0.0/16"})

	resp, err := p.Plan(context.Background(), &provider.PlanRequest{
		Type: "aws:EC2.Vpc", Name: "main",
		DesiredConfigJSON: desired, PriorStateJSON: prior,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionNoOp, resp.Action)
}

func TestPlanGeneric_SchemaDrivenAction(t *testing.T) {
	p := NewWithClient(&fakeEC2{})
	ctx := context.Background()

	prior := mustJSON(t, VpcState{ID: "vpc-123", CidrBlock: "10.0.0.0/16"})

	// Tags change in place.
	resp, err := p.Plan(ctx, &provider.PlanRequest{
		Type: "aws:EC2.Vpc", Name: "main",
		DesiredConfigJSON: mustJSON(t, map[string]any{"cidrBlock": "10.0.0.0/16", "tags": map[string]string{"env": "prod"}}),
		PriorStateJSON:    prior,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionUpdate, resp.Action)
	assert.Equal(t, []string{"tags"}, resp.ChangedAttributes)

	// The CIDR does not.
	resp, err = p.Plan(ctx, &provider.PlanRequest{
		Type: "aws:EC2.Vpc", Name: "main",
		DesiredConfigJSON: mustJSON(t, map[string]any{"cidrBlock": "10.1.0.0/16"}),
		PriorStateJSON:    prior,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionReplace, resp.Action)
}

type fakeAPIError struct{ code string }

func (e *fakeAPIError) Error() string                 { return e.code }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestWrapErrClassification(t *testing.T) {
	throttled := wrapErr("CreateVpc", &fakeAPIError{code: "RequestLimitExceeded"})
	assert.True(t, provider.IsRateLimited(throttled))

	missing := wrapErr("DeleteVpc", &fakeAPIError{code: "InvalidVpcID.NotFound"})
	assert.True(t, provider.IsNotFound(missing))

	var perr *provider.Error
	plain := wrapErr("CreateVpc", errors.New("dial tcp: timeout"))
	require.ErrorAs(t, plain, &perr)
	assert.Equal(t, provider.CodeUnknown, perr.Code)

	assert.NoError(t, wrapErr("CreateVpc", nil))
}

func TestApplyVpc_WrapsAPIError(t *testing.T) {
	fake := &fakeEC2{createVpcErr: &fakeAPIError{code: "Throttling"}}
	p := NewWithClient(fake)

	_, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "aws:EC2.Vpc", Name: "main",
		DesiredConfigJSON: mustJSON(t, VpcConfig{CidrBlock: "10.0.0.0/16"}),
	})
	require.Error(t, err)
	assert.True(t, provider.IsRateLimited(err))
}
