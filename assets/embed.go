package assets

import (
	_ "embed"
	"fmt"

	yaml "go.yaml.in/yaml/v3"
)

//go:embed timezones.yaml
var timezonesYAML []byte

//go:embed autoreplies.yaml
var autoRepliesYAML []byte

// TimezoneChoice is one entry of the timezone picker.
type TimezoneChoice struct {
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	Value       string `yaml:"value"`
}

// TimezoneChoices returns the timezones offered by the picker.
func TimezoneChoices() ([]TimezoneChoice, error) {
	var choices []TimezoneChoice
	if err := yaml.Unmarshal(timezonesYAML, &choices); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return choices, nil
}

// AutoReply is one keyword reply rule. A rule with several conditions
// matches only when all of them hold.
type AutoReply struct {
	Contains  string `yaml:"contains"`
	Pattern   string `yaml:"pattern"`
	MaxLength int    `yaml:"max_length"`
	Exclude   string `yaml:"exclude"`
	Reply     string `yaml:"reply"`
}

// AutoReplies returns the keyword reply rules in match order.
func AutoReplies() ([]AutoReply, error) {
	var rules []AutoReply
	if err := yaml.Unmarshal(autoRepliesYAML, &rules); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return rules, nil
}
