// Package bootstrap loads instances declared in a YAML file and replays the messages a
// widget sends when it starts.
package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/router"
)

// Instance is one entry of the instances file.
type Instance struct {
	InstanceID string                `yaml:"instanceId"`
	Config     domain.InstanceConfig `yaml:"config"`
}

type file struct {
	Instances []Instance `yaml:"instances"`
}

// CommandHandler is implemented by router.Router.
type CommandHandler interface {
	Handle(ctx context.Context, cmd router.Command) error
}

// LoadInstances reads the instances file at path.
func LoadInstances(path string) ([]Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	instances, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return instances, nil
}

// Decode parses an instances document. Unknown keys are rejected.
func Decode(r io.Reader) ([]Instance, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid instances YAML: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Instances))
	for i := range doc.Instances {
		id := strings.TrimSpace(doc.Instances[i].InstanceID)
		if id == "" {
			return nil, fmt.Errorf("instance %d: instanceId is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("instance %d: duplicate instanceId %q", i, id)
		}
		seen[id] = struct{}{}
		doc.Instances[i].InstanceID = id
	}
	return doc.Instances, nil
}

// Replay sends SET_CONFIG followed by LOGIN for every instance. Every instance is attempted;
// the returned error joins the failures.
func Replay(ctx context.Context, handler CommandHandler, instances []Instance) error {
	var errs []error
	for _, inst := range instances {
		payload, err := json.Marshal(inst.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: encode config: %w", inst.InstanceID, err))
			continue
		}
		if err := handler.Handle(ctx, router.Command{
			Name:       messages.Normalize(messages.SetConfig),
			InstanceID: inst.InstanceID,
			Payload:    payload,
		}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inst.InstanceID, err))
			continue
		}
		if err := handler.Handle(ctx, router.Command{
			Name:       messages.Normalize(messages.Login),
			InstanceID: inst.InstanceID,
		}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inst.InstanceID, err))
		}
	}
	return errors.Join(errs...)
}
