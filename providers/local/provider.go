// Package local manages files on the machine running the engine. Its single
// kind, local:File, is the persistence sink for rendered artifacts such as
// connection scripts.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moat-io/moat/pkg/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

type FileConfig struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"` // octal string, e.g. "0644"
}

type FileState struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Mode string `json:"mode"`
}

func (p *Provider) Configure(ctx context.Context) error { return nil }

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if req.DesiredConfigJSON == nil && req.PriorStateJSON != nil {
		return &provider.PlanResponse{Action: provider.ActionDelete}, nil
	}
	if req.PriorStateJSON == nil {
		return &provider.PlanResponse{Action: provider.ActionCreate}, nil
	}

	var desired FileConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	var prior FileState
	if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	// A moved file is a new file.
	if desired.Path != prior.Path {
		return &provider.PlanResponse{Action: provider.ActionReplace, ChangedAttributes: []string{"path"}}, nil
	}

	// Content drift is detected against the file on disk, not the recorded
	// state, so external edits are converged too.
	current, err := os.ReadFile(desired.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &provider.PlanResponse{Action: provider.ActionCreate}, nil
		}
		return nil, &provider.Error{Code: provider.CodeUnknown, Op: "ReadFile", Err: err}
	}
	if string(current) != desired.Content {
		return &provider.PlanResponse{Action: provider.ActionUpdate, ChangedAttributes: []string{"content"}}, nil
	}
	return &provider.PlanResponse{Action: provider.ActionNoOp}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if req.DesiredConfigJSON == nil {
		var prior FileState
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if prior.Path != "" {
			if err := os.Remove(prior.Path); err != nil && !os.IsNotExist(err) {
				return nil, &provider.Error{Code: provider.CodeUnknown, Op: "Remove", Err: err}
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	var desired FileConfig
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	mode := os.FileMode(0644)
	if desired.Mode != "" {
		var parsed uint32
		if _, err := fmt.Sscanf(desired.Mode, "%o", &parsed); err != nil {
			return nil, &provider.Error{Code: provider.CodeInvalidParameter, Op: "WriteFile",
				Err: fmt.Errorf("invalid mode %q: %w", desired.Mode, err)}
		}
		mode = os.FileMode(parsed)
	}

	if err := os.MkdirAll(filepath.Dir(desired.Path), 0755); err != nil {
		return nil, &provider.Error{Code: provider.CodeUnknown, Op: "MkdirAll", Err: err}
	}
	if err := os.WriteFile(desired.Path, []byte(desired.Content), mode); err != nil {
		return nil, &provider.Error{Code: provider.CodeUnknown, Op: "WriteFile", Err: err}
	}

	newState := FileState{
		ID:   desired.Path,
		Path: desired.Path,
		Mode: desired.Mode,
	}
	stateJSON, _ := json.Marshal(newState)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	if req.ID == "" {
		return nil
	}
	if err := os.Remove(req.ID); err != nil && !os.IsNotExist(err) {
		return &provider.Error{Code: provider.CodeUnknown, Op: "Remove", Err: err}
	}
	return nil
}
