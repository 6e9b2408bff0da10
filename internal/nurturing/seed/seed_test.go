package seed

import (
	"strings"
	"testing"
)

const validSeed = `
sequences:
  - name: relance-standard
    description: Standard follow-up drip
    steps:
      - offsetHours: 0
        channel: email
        subject: Bienvenue
        body: Merci pour votre interet.
      - offsetHours: 24
        channel: sms
        body: Un conseiller va vous rappeler.
      - offsetHours: 48
        channel: email
        subject: Relance
        body: Toujours interesse par la formation ?
  - name: relance-cpf
    active: false
    steps:
      - offsetHours: 0
        channel: email
        subject: Votre dossier CPF
        body: Verifiez votre compte formation.
`

func TestParseValidSeed(t *testing.T) {
	file, err := Parse([]byte(validSeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(file.Sequences) != 2 {
		t.Fatalf("expected 2 sequences, got %d", len(file.Sequences))
	}

	first := file.Sequences[0]
	if first.Name != "relance-standard" {
		t.Fatalf("unexpected name %q", first.Name)
	}
	if len(first.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(first.Steps))
	}
	if first.Steps[1].Channel != "sms" || first.Steps[1].OffsetHours != 24 {
		t.Fatalf("unexpected second step: %+v", first.Steps[1])
	}

	second := file.Sequences[1]
	if second.Active == nil || *second.Active {
		t.Fatal("expected relance-cpf to be declared inactive")
	}
}

func TestParseRejectsInvalidSeeds(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "sequences:\n  - steps:\n      - {offsetHours: 0, channel: sms, body: hi}\n",
			wantErr: "name is required",
		},
		{
			name:    "no steps",
			yaml:    "sequences:\n  - name: empty\n",
			wantErr: "at least one step",
		},
		{
			name:    "unknown channel",
			yaml:    "sequences:\n  - name: s\n    steps:\n      - {offsetHours: 0, channel: pigeon, body: hi}\n",
			wantErr: "unknown channel",
		},
		{
			name:    "negative offset",
			yaml:    "sequences:\n  - name: s\n    steps:\n      - {offsetHours: -1, channel: sms, body: hi}\n",
			wantErr: "offsetHours",
		},
		{
			name:    "email without subject",
			yaml:    "sequences:\n  - name: s\n    steps:\n      - {offsetHours: 0, channel: email, body: hi}\n",
			wantErr: "need a subject",
		},
		{
			name:    "missing body",
			yaml:    "sequences:\n  - name: s\n    steps:\n      - {offsetHours: 0, channel: sms}\n",
			wantErr: "body is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
