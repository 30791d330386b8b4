package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/callscope/callscope/internal/session"
)

// rulesFile is the YAML shape of the classification rules file.
type rulesFile struct {
	// OperatorPatterns are regular expressions matched against leg
	// destinations, checked before queue membership.
	OperatorPatterns []string `yaml:"operator_patterns"`
	// QueueNumbers are literal queue destination numbers.
	QueueNumbers []string `yaml:"queue_numbers"`
	// OrphanLinkWindowSec bounds orphan linking; 0 keeps the default.
	OrphanLinkWindowSec int `yaml:"orphan_link_window_sec"`
}

// DefaultRules returns the built-in classification rules: three-digit
// operator extensions starting with 1 and the 00x queue range.
func DefaultRules() *session.Rules {
	return &session.Rules{
		OperatorPatterns: []*regexp.Regexp{regexp.MustCompile(`^1\d{2}$`)},
		QueueNumbers: map[string]struct{}{
			"001": {},
			"002": {},
		},
	}
}

// LoadRules reads and compiles the YAML rules file at path. An empty path
// returns the built-in defaults; a set but unreadable or invalid file is
// an error, since silently misclassifying legs would corrupt every report.
func LoadRules(path string) (*session.Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := &session.Rules{
		QueueNumbers:     make(map[string]struct{}, len(rf.QueueNumbers)),
		OrphanLinkWindow: time.Duration(rf.OrphanLinkWindowSec) * time.Second,
	}
	for _, pattern := range rf.OperatorPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling operator pattern %q: %w", pattern, err)
		}
		rules.OperatorPatterns = append(rules.OperatorPatterns, re)
	}
	for _, q := range rf.QueueNumbers {
		if q != "" {
			rules.QueueNumbers[q] = struct{}{}
		}
	}

	return rules, nil
}
