package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ukydev/fleet-automation/internal/models"
)

// policyFile is the YAML shape of a due-policy override file:
//
//	policies:
//	  Oil Change: {km_interval: 7500, month_interval: 6}
type policyFile struct {
	Policies map[models.ServiceType]models.DuePolicy `yaml:"policies"`
}

// LoadDuePolicies returns the default due-policy table with any overrides
// from path applied. An empty path returns the defaults.
func LoadDuePolicies(path string) (map[models.ServiceType]models.DuePolicy, error) {
	policies := make(map[models.ServiceType]models.DuePolicy, len(models.DefaultDuePolicies))
	for k, v := range models.DefaultDuePolicies {
		policies[k] = v
	}
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read maintenance policy file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse maintenance policy file: %w", err)
	}
	for service, p := range file.Policies {
		if !service.Valid() {
			return nil, fmt.Errorf("maintenance policy file: unknown service type %q", service)
		}
		if p.KmInterval < 0 || p.MonthInterval < 0 {
			return nil, fmt.Errorf("maintenance policy file: negative interval for %q", service)
		}
		policies[service] = p
	}
	return policies, nil
}
