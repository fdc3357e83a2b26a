package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/moat-io/moat/pkg/provider"
)

type VpcConfig struct {
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsHostnames bool              `json:"enableDnsHostnames"`
	Tags               map[string]string `json:"tags"`
}

type VpcState struct {
	ID                 string            `json:"id"`
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsHostnames bool              `json:"enableDnsHostnames,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applyVpc(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired VpcConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// Only tags change in place on a network.
	if req.PriorStateJSON != nil {
		var prior VpcState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		p.tag(ctx, prior.ID, desired.Tags)
		return &provider.ApplyResponse{NewStateJSON: req.PriorStateJSON}, nil
	}

	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: &desired.CidrBlock,
	})
	if err != nil {
		return nil, wrapErr("CreateVpc", err)
	}

	p.tag(ctx, *resp.Vpc.VpcId, desired.Tags)

	newState := VpcState{
		ID:                 *resp.Vpc.VpcId,
		CidrBlock:          *resp.Vpc.CidrBlock,
		EnableDnsHostnames: desired.EnableDnsHostnames,
		Tags:               desired.Tags,
	}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteVpc(ctx context.Context, req *provider.DeleteRequest) error {
	var prior VpcState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &prior.ID}); err != nil {
		return wrapErr("DeleteVpc", err)
	}
	return nil
}

type SubnetConfig struct {
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch"`
	Tags                map[string]string `json:"tags"`
}

type SubnetState struct {
	ID                  string            `json:"id"`
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone,omitempty"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch,omitempty"`
	Tags                map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applySubnet(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired SubnetConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorStateJSON != nil {
		var prior SubnetState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            &prior.ID,
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: &desired.MapPublicIpOnLaunch},
		})
		if err != nil {
			return nil, wrapErr("ModifySubnetAttribute", err)
		}
		p.tag(ctx, prior.ID, desired.Tags)
		return &provider.ApplyResponse{NewStateJSON: req.PriorStateJSON}, nil
	}

	input := &ec2.CreateSubnetInput{
		VpcId:     &desired.VpcID,
		CidrBlock: &desired.CidrBlock,
	}
	if desired.AvailabilityZone != "" {
		input.AvailabilityZone = &desired.AvailabilityZone
	}

	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return nil, wrapErr("CreateSubnet", err)
	}

	p.tag(ctx, *resp.Subnet.SubnetId, desired.Tags)

	if desired.MapPublicIpOnLaunch {
		_, _ = p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            resp.Subnet.SubnetId,
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: func(b bool) *bool { return &b }(true)},
		})
	}

	newState := SubnetState{
		ID:                  *resp.Subnet.SubnetId,
		VpcID:               *resp.Subnet.VpcId,
		CidrBlock:           desired.CidrBlock,
		AvailabilityZone:    desired.AvailabilityZone,
		MapPublicIpOnLaunch: desired.MapPublicIpOnLaunch,
		Tags:                desired.Tags,
	}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, req *provider.DeleteRequest) error {
	var prior SubnetState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: &prior.ID}); err != nil {
		return wrapErr("DeleteSubnet", err)
	}
	return nil
}

type InternetGatewayConfig struct {
	VpcID string            `json:"vpcId"`
	Tags  map[string]string `json:"tags"`
}

type InternetGatewayState struct {
	ID    string            `json:"id"`
	VpcID string            `json:"vpcId"`
	Tags  map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applyInternetGateway(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired InternetGatewayConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorStateJSON != nil {
		var prior InternetGatewayState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		p.tag(ctx, prior.ID, desired.Tags)
		return &provider.ApplyResponse{NewStateJSON: req.PriorStateJSON}, nil
	}

	resp, err := p.ec2Client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{})
	if err != nil {
		return nil, wrapErr("CreateInternetGateway", err)
	}
	igwID := *resp.InternetGateway.InternetGatewayId

	if desired.VpcID != "" {
		_, err := p.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: &igwID,
			VpcId:             &desired.VpcID,
		})
		if err != nil {
			return nil, wrapErr("AttachInternetGateway", err)
		}
	}

	p.tag(ctx, igwID, desired.Tags)

	newState := InternetGatewayState{ID: igwID, VpcID: desired.VpcID, Tags: desired.Tags}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteInternetGateway(ctx context.Context, req *provider.DeleteRequest) error {
	var prior InternetGatewayState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	// Gateways must come off the network before deletion.
	if prior.VpcID != "" {
		_, _ = p.ec2Client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: &prior.ID,
			VpcId:             &prior.VpcID,
		})
	}
	if _, err := p.ec2Client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: &prior.ID}); err != nil {
		return wrapErr("DeleteInternetGateway", err)
	}
	return nil
}

type ElasticIPConfig struct {
	Tags map[string]string `json:"tags"`
}

type ElasticIPState struct {
	AllocationID string            `json:"allocationId"`
	PublicIP     string            `json:"publicIp"`
	Tags         map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applyElasticIP(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ElasticIPConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// Allocations are immutable; a prior allocation is kept as-is.
	if req.PriorStateJSON != nil {
		return &provider.ApplyResponse{NewStateJSON: req.PriorStateJSON}, nil
	}

	resp, err := p.ec2Client.AllocateAddress(ctx, &ec2.AllocateAddressInput{Domain: types.DomainTypeVpc})
	if err != nil {
		return nil, wrapErr("AllocateAddress", err)
	}

	p.tag(ctx, *resp.AllocationId, desired.Tags)

	newState := ElasticIPState{AllocationID: *resp.AllocationId, PublicIP: *resp.PublicIp, Tags: desired.Tags}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteElasticIP(ctx context.Context, req *provider.DeleteRequest) error {
	var prior ElasticIPState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.AllocationID == "" {
		return nil
	}
	if _, err := p.ec2Client.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: &prior.AllocationID}); err != nil {
		return wrapErr("ReleaseAddress", err)
	}
	return nil
}

type NatGatewayConfig struct {
	SubnetID     string            `json:"subnetId"`
	AllocationID string            `json:"allocationId"`
	Tags         map[string]string `json:"tags"`
}

type NatGatewayState struct {
	ID           string            `json:"id"`
	SubnetID     string            `json:"subnetId"`
	AllocationID string            `json:"allocationId"`
	Tags         map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applyNatGateway(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired NatGatewayConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorStateJSON != nil {
		var prior NatGatewayState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		p.tag(ctx, prior.ID, desired.Tags)
		return &provider.ApplyResponse{NewStateJSON: req.PriorStateJSON}, nil
	}

	resp, err := p.ec2Client.CreateNatGateway(ctx, &ec2.CreateNatGatewayInput{
		SubnetId:     &desired.SubnetID,
		AllocationId: &desired.AllocationID,
	})
	if err != nil {
		return nil, wrapErr("CreateNatGateway", err)
	}
	natID := *resp.NatGateway.NatGatewayId

	// Routes referencing the gateway fail until it is available.
	if client, ok := p.ec2Client.(*ec2.Client); ok {
		waiter := ec2.NewNatGatewayAvailableWaiter(client)
		if err := waiter.Wait(ctx, &ec2.DescribeNatGatewaysInput{
			NatGatewayIds: []string{natID},
		}, 10*time.Minute); err != nil {
			return nil, fmt.Errorf("failed to wait for NAT gateway: %w", err)
		}
	}

	p.tag(ctx, natID, desired.Tags)

	newState := NatGatewayState{ID: natID, SubnetID: desired.SubnetID, AllocationID: desired.AllocationID, Tags: desired.Tags}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteNatGateway(ctx context.Context, req *provider.DeleteRequest) error {
	var prior NatGatewayState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{NatGatewayId: &prior.ID}); err != nil {
		return wrapErr("DeleteNatGateway", err)
	}
	return nil
}

type RouteConfig struct {
	DestinationCidrBlock string  `json:"destinationCidrBlock"`
	GatewayID            *string `json:"gatewayId"`
	NatGatewayID         *string `json:"natGatewayId"`
}

type RouteTableConfig struct {
	VpcID  string            `json:"vpcId"`
	Routes []RouteConfig     `json:"routes"`
	Tags   map[string]string `json:"tags"`
}

type RouteTableState struct {
	ID     string            `json:"id"`
	VpcID  string            `json:"vpcId"`
	Routes []RouteConfig     `json:"routes,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applyRouteTable(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RouteTableConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// A table survives a replaced gateway: its routes are rewritten to
	// point at the successor.
	if req.PriorStateJSON != nil {
		var prior RouteTableState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if err := p.rewriteRoutes(ctx, prior.ID, desired.Routes); err != nil {
			return nil, err
		}
		p.tag(ctx, prior.ID, desired.Tags)
		return &provider.ApplyResponse{NewStateJSON: req.PriorStateJSON}, nil
	}

	resp, err := p.ec2Client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{VpcId: &desired.VpcID})
	if err != nil {
		return nil, wrapErr("CreateRouteTable", err)
	}
	rtID := *resp.RouteTable.RouteTableId

	if err := p.createRoutes(ctx, rtID, desired.Routes); err != nil {
		return nil, err
	}

	p.tag(ctx, rtID, desired.Tags)

	newState := RouteTableState{ID: rtID, VpcID: desired.VpcID, Routes: desired.Routes, Tags: desired.Tags}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) createRoutes(ctx context.Context, rtID string, routes []RouteConfig) error {
	for _, route := range routes {
		input := &ec2.CreateRouteInput{
			RouteTableId:         &rtID,
			DestinationCidrBlock: &route.DestinationCidrBlock,
		}
		if route.GatewayID != nil {
			input.GatewayId = route.GatewayID
		}
		if route.NatGatewayID != nil {
			input.NatGatewayId = route.NatGatewayID
		}
		if _, err := p.ec2Client.CreateRoute(ctx, input); err != nil {
			return wrapErr("CreateRoute", err)
		}
	}
	return nil
}

// rewriteRoutes drops every non-local route and recreates the desired set.
func (p *Provider) rewriteRoutes(ctx context.Context, rtID string, routes []RouteConfig) error {
	describe, err := p.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		RouteTableIds: []string{rtID},
	})
	if err != nil {
		return wrapErr("DescribeRouteTables", err)
	}

	for _, table := range describe.RouteTables {
		for _, route := range table.Routes {
			if route.GatewayId != nil && *route.GatewayId == "local" {
				continue
			}
			if route.DestinationCidrBlock == nil {
				continue
			}
			_, err := p.ec2Client.DeleteRoute(ctx, &ec2.DeleteRouteInput{
				RouteTableId:         &rtID,
				DestinationCidrBlock: route.DestinationCidrBlock,
			})
			if err != nil {
				return wrapErr("DeleteRoute", err)
			}
		}
	}

	return p.createRoutes(ctx, rtID, routes)
}

func (p *Provider) deleteRouteTable(ctx context.Context, req *provider.DeleteRequest) error {
	var prior RouteTableState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: &prior.ID}); err != nil {
		return wrapErr("DeleteRouteTable", err)
	}
	return nil
}

type RouteTableAssociationConfig struct {
	SubnetID     string `json:"subnetId"`
	RouteTableID string `json:"routeTableId"`
}

type RouteTableAssociationState struct {
	ID           string `json:"id"`
	SubnetID     string `json:"subnetId"`
	RouteTableID string `json:"routeTableId"`
}

func (p *Provider) applyRouteTableAssociation(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RouteTableAssociationConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	// Re-pointing the subnet at another table swaps the association in
	// place and yields a new association id.
	if req.PriorStateJSON != nil {
		var prior RouteTableAssociationState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		resp, err := p.ec2Client.ReplaceRouteTableAssociation(ctx, &ec2.ReplaceRouteTableAssociationInput{
			AssociationId: &prior.ID,
			RouteTableId:  &desired.RouteTableID,
		})
		if err != nil {
			return nil, wrapErr("ReplaceRouteTableAssociation", err)
		}
		newState := RouteTableAssociationState{ID: *resp.NewAssociationId, SubnetID: desired.SubnetID, RouteTableID: desired.RouteTableID}
		stateJSON, _ := json.Marshal(newState)
		return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
	}

	resp, err := p.ec2Client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		SubnetId:     &desired.SubnetID,
		RouteTableId: &desired.RouteTableID,
	})
	if err != nil {
		return nil, wrapErr("AssociateRouteTable", err)
	}

	newState := RouteTableAssociationState{ID: *resp.AssociationId, SubnetID: desired.SubnetID, RouteTableID: desired.RouteTableID}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteRouteTableAssociation(ctx context.Context, req *provider.DeleteRequest) error {
	var prior RouteTableAssociationState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{AssociationId: &prior.ID}); err != nil {
		return wrapErr("DisassociateRouteTable", err)
	}
	return nil
}

type SecurityGroupConfig struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	VpcID       string              `json:"vpcId"`
	Ingress     []SecurityGroupRule `json:"ingress"`
	Egress      []SecurityGroupRule `json:"egress"`
	Tags        map[string]string   `json:"tags"`
}

type SecurityGroupRule struct {
	FromPort   int      `json:"fromPort"`
	ToPort     int      `json:"toPort"`
	Protocol   string   `json:"protocol"`
	CidrBlocks []string `json:"cidrBlocks"`
}

type SecurityGroupState struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	VpcID       string              `json:"vpcId,omitempty"`
	Ingress     []SecurityGroupRule `json:"ingress,omitempty"`
	Egress      []SecurityGroupRule `json:"egress,omitempty"`
	Tags        map[string]string   `json:"tags,omitempty"`
}

func (p *Provider) applySecurityGroup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired SecurityGroupConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorStateJSON != nil {
		return p.updateSecurityGroup(ctx, req, desired)
	}

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   &desired.Name,
		Description: &desired.Description,
	}
	if desired.VpcID != "" {
		input.VpcId = &desired.VpcID
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		return nil, wrapErr("CreateSecurityGroup", err)
	}
	groupID := *resp.GroupId

	if len(desired.Ingress) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &groupID,
			IpPermissions: toIPPermissions(desired.Ingress),
		})
		if err != nil {
			return nil, wrapErr("AuthorizeSecurityGroupIngress", err)
		}
	}
	if len(desired.Egress) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       &groupID,
			IpPermissions: toIPPermissions(desired.Egress),
		})
		if err != nil {
			return nil, wrapErr("AuthorizeSecurityGroupEgress", err)
		}
	}

	p.tag(ctx, groupID, desired.Tags)

	newState := SecurityGroupState{
		ID: groupID, Name: desired.Name, Description: desired.Description,
		VpcID: desired.VpcID, Ingress: desired.Ingress, Egress: desired.Egress, Tags: desired.Tags,
	}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

// updateSecurityGroup revokes the recorded rule set and authorizes the
// desired one. Rules live in state so no describe round trip is needed.
func (p *Provider) updateSecurityGroup(ctx context.Context, req *provider.ApplyRequest, desired SecurityGroupConfig) (*provider.ApplyResponse, error) {
	var prior SecurityGroupState
	if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	if len(prior.Ingress) > 0 {
		_, err := p.ec2Client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       &prior.ID,
			IpPermissions: toIPPermissions(prior.Ingress),
		})
		if err != nil {
			return nil, wrapErr("RevokeSecurityGroupIngress", err)
		}
	}
	if len(prior.Egress) > 0 {
		_, err := p.ec2Client.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
			GroupId:       &prior.ID,
			IpPermissions: toIPPermissions(prior.Egress),
		})
		if err != nil {
			return nil, wrapErr("RevokeSecurityGroupEgress", err)
		}
	}

	if len(desired.Ingress) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &prior.ID,
			IpPermissions: toIPPermissions(desired.Ingress),
		})
		if err != nil {
			return nil, wrapErr("AuthorizeSecurityGroupIngress", err)
		}
	}
	if len(desired.Egress) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       &prior.ID,
			IpPermissions: toIPPermissions(desired.Egress),
		})
		if err != nil {
			return nil, wrapErr("AuthorizeSecurityGroupEgress", err)
		}
	}

	p.tag(ctx, prior.ID, desired.Tags)

	newState := SecurityGroupState{
		ID: prior.ID, Name: prior.Name, Description: prior.Description,
		VpcID: prior.VpcID, Ingress: desired.Ingress, Egress: desired.Egress, Tags: desired.Tags,
	}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, req *provider.DeleteRequest) error {
	var prior SecurityGroupState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: &prior.ID}); err != nil {
		return wrapErr("DeleteSecurityGroup", err)
	}
	return nil
}

func toIPPermissions(rules []SecurityGroupRule) []types.IpPermission {
	var perms []types.IpPermission
	for _, rule := range rules {
		var ipRanges []types.IpRange
		for _, cidr := range rule.CidrBlocks {
			ipRanges = append(ipRanges, types.IpRange{CidrIp: &cidr})
		}
		perms = append(perms, types.IpPermission{
			IpProtocol: &rule.Protocol,
			FromPort:   func(i int32) *int32 { return &i }(int32(rule.FromPort)),
			ToPort:     func(i int32) *int32 { return &i }(int32(rule.ToPort)),
			IpRanges:   ipRanges,
		})
	}
	return perms
}

// tag best-effort tags a resource; tagging failures never fail the apply.
func (p *Provider) tag(ctx context.Context, id string, tags map[string]string) {
	if len(tags) == 0 {
		return
	}
	var ec2Tags []types.Tag
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: &k, Value: &v})
	}
	_, _ = p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags,
	})
}
