// Package seed loads nurturing sequence definitions from a YAML file.
package seed

import (
	"context"
	"fmt"
	"os"

	"closing_backend/internal/nurturing/repository"

	"gopkg.in/yaml.v3"
)

// File is the root of the sequence definition document.
type File struct {
	Sequences []SequenceDef `yaml:"sequences"`
}

// SequenceDef is one declared sequence.
type SequenceDef struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Active      *bool     `yaml:"active"`
	Steps       []StepDef `yaml:"steps"`
}

// StepDef is one declared step.
type StepDef struct {
	OffsetHours int    `yaml:"offsetHours"`
	Channel     string `yaml:"channel"`
	Subject     string `yaml:"subject"`
	Body        string `yaml:"body"`
}

// Parse decodes and validates a sequence definition document.
func Parse(data []byte) (File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("decode sequence seed: %w", err)
	}

	for i, seq := range file.Sequences {
		if seq.Name == "" {
			return File{}, fmt.Errorf("sequence %d: name is required", i)
		}
		if len(seq.Steps) == 0 {
			return File{}, fmt.Errorf("sequence %s: at least one step is required", seq.Name)
		}
		for j, step := range seq.Steps {
			if step.OffsetHours < 0 {
				return File{}, fmt.Errorf("sequence %s step %d: offsetHours must not be negative", seq.Name, j)
			}
			switch step.Channel {
			case repository.ChannelEmail, repository.ChannelSMS:
			default:
				return File{}, fmt.Errorf("sequence %s step %d: unknown channel %q", seq.Name, j, step.Channel)
			}
			if step.Channel == repository.ChannelEmail && step.Subject == "" {
				return File{}, fmt.Errorf("sequence %s step %d: email steps need a subject", seq.Name, j)
			}
			if step.Body == "" {
				return File{}, fmt.Errorf("sequence %s step %d: body is required", seq.Name, j)
			}
		}
	}

	return file, nil
}

// Apply upserts every declared sequence. Running it on every startup keeps
// the database in sync with the seed file.
func Apply(ctx context.Context, repo repository.NurturingRepository, file File) error {
	for _, def := range file.Sequences {
		active := true
		if def.Active != nil {
			active = *def.Active
		}

		seq := repository.Sequence{
			Name:        def.Name,
			Description: def.Description,
			Active:      active,
		}
		for i, stepDef := range def.Steps {
			seq.Steps = append(seq.Steps, repository.Step{
				StepOrder:   i + 1,
				OffsetHours: stepDef.OffsetHours,
				Channel:     stepDef.Channel,
				Subject:     stepDef.Subject,
				Body:        stepDef.Body,
			})
		}

		if _, err := repo.UpsertSequence(ctx, seq); err != nil {
			return fmt.Errorf("seed sequence %s: %w", def.Name, err)
		}
	}
	return nil
}

// LoadFile parses and applies a seed file from disk. A missing path is a
// no-op so deployments without a seed file still start.
func LoadFile(ctx context.Context, repo repository.NurturingRepository, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sequence seed %s: %w", path, err)
	}

	file, err := Parse(data)
	if err != nil {
		return err
	}
	return Apply(ctx, repo, file)
}
