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

type KeyPairConfig struct {
	KeyName   string            `json:"keyName"`
	PublicKey string            `json:"publicKey"`
	Tags      map[string]string `json:"tags"`
}

type KeyPairState struct {
	ID        string            `json:"id"`
	KeyName   string            `json:"keyName"`
	PublicKey string            `json:"publicKey,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

func (p *Provider) applyKeyPair(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired KeyPairConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	if desired.PublicKey == "" {
		return nil, fmt.Errorf("key pair %q has no public key material", desired.KeyName)
	}

	resp, err := p.ec2Client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           &desired.KeyName,
		PublicKeyMaterial: []byte(desired.PublicKey),
	})
	if err != nil {
		return nil, wrapErr("ImportKeyPair", err)
	}

	p.tag(ctx, *resp.KeyPairId, desired.Tags)

	newState := KeyPairState{ID: *resp.KeyPairId, KeyName: desired.KeyName, PublicKey: desired.PublicKey, Tags: desired.Tags}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteKeyPair(ctx context.Context, req *provider.DeleteRequest) error {
	var prior KeyPairState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.KeyName == "" {
		return nil
	}
	if _, err := p.ec2Client.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyName: &prior.KeyName}); err != nil {
		return wrapErr("DeleteKeyPair", err)
	}
	return nil
}

type InstanceConfig struct {
	AMI              string            `json:"ami"`
	InstanceType     string            `json:"instanceType"`
	SubnetID         string            `json:"subnetId"`
	KeyName          string            `json:"keyName"`
	SecurityGroupIDs []string          `json:"securityGroupIds"`
	UserData         string            `json:"userData"`
	Tags             map[string]string `json:"tags"`
}

type InstanceState struct {
	ID               string            `json:"id"`
	AMI              string            `json:"ami"`
	InstanceType     string            `json:"instanceType"`
	SubnetID         string            `json:"subnetId"`
	KeyName          string            `json:"keyName,omitempty"`
	SecurityGroupIDs []string          `json:"securityGroupIds,omitempty"`
	UserData         string            `json:"userData,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	PublicIP         string            `json:"public_ip"`
	PrivateIP        string            `json:"private_ip"`
}

func (p *Provider) planInstance(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if req.DesiredConfigJSON == nil {
		if req.PriorStateJSON == nil {
			return &provider.PlanResponse{Action: provider.ActionNoOp}, nil
		}
		return &provider.PlanResponse{Action: provider.ActionDelete}, nil
	}
	if req.PriorStateJSON == nil {
		return &provider.PlanResponse{Action: provider.ActionCreate}, nil
	}

	var desired InstanceConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}
	var prior InstanceState
	if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	var changed []string
	if desired.AMI != prior.AMI {
		changed = append(changed, "ami")
	}
	if desired.InstanceType != prior.InstanceType {
		changed = append(changed, "instanceType")
	}
	if desired.SubnetID != prior.SubnetID {
		changed = append(changed, "subnetId")
	}
	if len(changed) > 0 {
		// Launch attributes are immutable on a running instance.
		return &provider.PlanResponse{Action: provider.ActionReplace, ChangedAttributes: changed}, nil
	}
	if fmt.Sprintf("%v", desired.Tags) != fmt.Sprintf("%v", prior.Tags) {
		return &provider.PlanResponse{Action: provider.ActionUpdate, ChangedAttributes: []string{"tags"}}, nil
	}
	return &provider.PlanResponse{Action: provider.ActionNoOp}, nil
}

func (p *Provider) applyInstance(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired InstanceConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorStateJSON != nil {
		var prior InstanceState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		p.tag(ctx, prior.ID, desired.Tags)
		prior.Tags = desired.Tags
		stateJSON, _ := json.Marshal(prior)
		return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
	}

	input := &ec2.RunInstancesInput{
		ImageId:      &desired.AMI,
		InstanceType: types.InstanceType(desired.InstanceType),
		MinCount:     func(i int32) *int32 { return &i }(1),
		MaxCount:     func(i int32) *int32 { return &i }(1),
	}
	if desired.SubnetID != "" {
		input.SubnetId = &desired.SubnetID
	}
	if desired.KeyName != "" {
		input.KeyName = &desired.KeyName
	}
	if len(desired.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = desired.SecurityGroupIDs
	}
	if desired.UserData != "" {
		input.UserData = &desired.UserData
	}

	resp, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return nil, wrapErr("RunInstances", err)
	}
	instanceID := *resp.Instances[0].InstanceId

	p.tag(ctx, instanceID, desired.Tags)

	// Address assignment lags launch; the provisioner needs a reachable IP.
	if client, ok := p.ec2Client.(*ec2.Client); ok {
		waiter := ec2.NewInstanceRunningWaiter(client)
		if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		}, 5*time.Minute); err != nil {
			return nil, fmt.Errorf("failed to wait for instance %s: %w", instanceID, err)
		}
	}

	newState := InstanceState{
		ID:               instanceID,
		AMI:              desired.AMI,
		InstanceType:     desired.InstanceType,
		SubnetID:         desired.SubnetID,
		KeyName:          desired.KeyName,
		SecurityGroupIDs: desired.SecurityGroupIDs,
		UserData:         desired.UserData,
		Tags:             desired.Tags,
	}

	describe, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err == nil && len(describe.Reservations) > 0 && len(describe.Reservations[0].Instances) > 0 {
		inst := describe.Reservations[0].Instances[0]
		if inst.PublicIpAddress != nil {
			newState.PublicIP = *inst.PublicIpAddress
		}
		if inst.PrivateIpAddress != nil {
			newState.PrivateIP = *inst.PrivateIpAddress
		}
	}

	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) deleteInstance(ctx context.Context, req *provider.DeleteRequest) error {
	var prior InstanceState
	if err := json.Unmarshal(req.CurrentStateJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	if _, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{prior.ID}}); err != nil {
		return wrapErr("TerminateInstances", err)
	}
	return nil
}
