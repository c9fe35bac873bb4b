// Package authorities maps EU member states to the market surveillance
// authority that receives serious incident notifications.
package authorities

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed authorities.yaml
var defaultDirectory []byte

// Authority is a market surveillance authority of one member state
type Authority struct {
	MemberState string `yaml:"member_state" json:"member_state"`
	Country     string `yaml:"country" json:"country"`
	Name        string `yaml:"name" json:"name"`
	Contact     string `yaml:"contact" json:"contact,omitempty"`
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
}

type directoryFile struct {
	Authorities []Authority `yaml:"authorities"`
}

// Directory is an immutable lookup table of authorities by member state code
type Directory struct {
	byState map[string]Authority
	ordered []Authority
}

// Parse reads a YAML authority directory
func Parse(data []byte) (*Directory, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse authority directory: %w", err)
	}

	d := &Directory{byState: make(map[string]Authority, len(file.Authorities))}
	for i, a := range file.Authorities {
		a.MemberState = normalize(a.MemberState)
		if a.MemberState == "" {
			return nil, fmt.Errorf("authority %d: member_state is required", i)
		}
		if _, dup := d.byState[a.MemberState]; dup {
			return nil, fmt.Errorf("authority %d: duplicate member_state %s", i, a.MemberState)
		}
		a.Contact = strings.TrimSpace(a.Contact)
		d.byState[a.MemberState] = a
		d.ordered = append(d.ordered, a)
	}
	sort.Slice(d.ordered, func(i, j int) bool {
		return d.ordered[i].MemberState < d.ordered[j].MemberState
	})
	return d, nil
}

// Default returns the directory bundled with the binary
func Default() *Directory {
	d, err := Parse(defaultDirectory)
	if err != nil {
		panic(fmt.Sprintf("embedded authority directory is invalid: %v", err))
	}
	return d
}

// Load reads the directory at path, or the bundled one when path is empty
func Load(path string) (*Directory, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read authority directory: %w", err)
	}
	return Parse(data)
}

// Lookup returns the authority of a member state
func (d *Directory) Lookup(memberState string) (Authority, bool) {
	a, ok := d.byState[normalize(memberState)]
	return a, ok
}

// ContactFor returns the notification contact of a member state's authority,
// if one is configured
func (d *Directory) ContactFor(memberState string) (string, bool) {
	a, ok := d.Lookup(memberState)
	if !ok || a.Contact == "" {
		return "", false
	}
	return a.Contact, true
}

// List returns every authority ordered by member state code
func (d *Directory) List() []Authority {
	return append([]Authority(nil), d.ordered...)
}

func normalize(memberState string) string {
	return strings.ToUpper(strings.TrimSpace(memberState))
}
