// Package aws binds the engine's resource kinds to the EC2 API. Each kind
// maps onto the corresponding create/delete calls; configuration and state
// cross the provider boundary as JSON.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/moat-io/moat/internal/schema"
	"github.com/moat-io/moat/pkg/provider"
)

// EC2API is the subset of the EC2 client the provider uses, extracted so
// tests can substitute a fake.
type EC2API interface {
	CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
	CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)
	ModifySubnetAttribute(ctx context.Context, params *ec2.ModifySubnetAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error)
	CreateInternetGateway(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error)
	AttachInternetGateway(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error)
	DetachInternetGateway(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error)
	DeleteInternetGateway(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error)
	AllocateAddress(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error)
	ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error)
	CreateNatGateway(ctx context.Context, params *ec2.CreateNatGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateNatGatewayOutput, error)
	DeleteNatGateway(ctx context.Context, params *ec2.DeleteNatGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error)
	CreateRouteTable(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error)
	DeleteRouteTable(ctx context.Context, params *ec2.DeleteRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error)
	CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
	DeleteRoute(ctx context.Context, params *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	AssociateRouteTable(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error)
	ReplaceRouteTableAssociation(ctx context.Context, params *ec2.ReplaceRouteTableAssociationInput, optFns ...func(*ec2.Options)) (*ec2.ReplaceRouteTableAssociationOutput, error)
	DisassociateRouteTable(ctx context.Context, params *ec2.DisassociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	AuthorizeSecurityGroupEgress(ctx context.Context, params *ec2.AuthorizeSecurityGroupEgressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupEgressOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, params *ec2.RevokeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error)
	RevokeSecurityGroupEgress(ctx context.Context, params *ec2.RevokeSecurityGroupEgressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupEgressOutput, error)
	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
	DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

type Provider struct {
	ec2Client EC2API
	region    string
}

func New() *Provider {
	return &Provider{}
}

// NewWithClient returns a provider backed by a caller-supplied EC2 client.
func NewWithClient(client EC2API) *Provider {
	return &Provider{ec2Client: client}
}

func (p *Provider) ensureClient(ctx context.Context) error {
	if p.ec2Client != nil {
		return nil
	}

	region := p.region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.ec2Client = ec2.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Configure(ctx context.Context) error {
	return p.ensureClient(ctx)
}

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	if req.Type == "aws:EC2.Instance" {
		return p.planInstance(ctx, req)
	}

	if req.DesiredConfigJSON == nil && req.PriorStateJSON != nil {
		return &provider.PlanResponse{Action: provider.ActionDelete}, nil
	}
	if req.PriorStateJSON == nil {
		return &provider.PlanResponse{Action: provider.ActionCreate}, nil
	}

	var desired, prior map[string]any
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	// Prior state carries provider-assigned outputs the declaration never
	// names, so only declared attributes are compared.
	var changed []string
	for k, v := range desired {
		pv, ok := prior[k]
		if !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", pv) {
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return &provider.PlanResponse{Action: provider.ActionNoOp}, nil
	}
	sort.Strings(changed)

	action := provider.ActionUpdate
	for _, attr := range changed {
		if !schema.IsUpdatable(req.Type, attr) {
			action = provider.ActionReplace
			break
		}
	}
	return &provider.PlanResponse{Action: action, ChangedAttributes: changed}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:EC2.Vpc":
		return p.applyVpc(ctx, req)
	case "aws:EC2.Subnet":
		return p.applySubnet(ctx, req)
	case "aws:EC2.InternetGateway":
		return p.applyInternetGateway(ctx, req)
	case "aws:EC2.ElasticIP":
		return p.applyElasticIP(ctx, req)
	case "aws:EC2.NatGateway":
		return p.applyNatGateway(ctx, req)
	case "aws:EC2.RouteTable":
		return p.applyRouteTable(ctx, req)
	case "aws:EC2.RouteTableAssociation":
		return p.applyRouteTableAssociation(ctx, req)
	case "aws:EC2.SecurityGroup":
		return p.applySecurityGroup(ctx, req)
	case "aws:EC2.KeyPair":
		return p.applyKeyPair(ctx, req)
	case "aws:EC2.Instance":
		return p.applyInstance(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	if err := p.ensureClient(ctx); err != nil {
		return err
	}

	switch req.Type {
	case "aws:EC2.Vpc":
		return p.deleteVpc(ctx, req)
	case "aws:EC2.Subnet":
		return p.deleteSubnet(ctx, req)
	case "aws:EC2.InternetGateway":
		return p.deleteInternetGateway(ctx, req)
	case "aws:EC2.ElasticIP":
		return p.deleteElasticIP(ctx, req)
	case "aws:EC2.NatGateway":
		return p.deleteNatGateway(ctx, req)
	case "aws:EC2.RouteTable":
		return p.deleteRouteTable(ctx, req)
	case "aws:EC2.RouteTableAssociation":
		return p.deleteRouteTableAssociation(ctx, req)
	case "aws:EC2.SecurityGroup":
		return p.deleteSecurityGroup(ctx, req)
	case "aws:EC2.KeyPair":
		return p.deleteKeyPair(ctx, req)
	case "aws:EC2.Instance":
		return p.deleteInstance(ctx, req)
	}

	return fmt.Errorf("unknown resource type: %s", req.Type)
}
