package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"trendguard/internal/logger"
	"trendguard/pkg/models"
)

// RuleFile is the on-disk rule document.
type RuleFile struct {
	Version  int          `yaml:"version"`
	Defaults RuleDefaults `yaml:"defaults"`
	Rules    []Rule       `yaml:"rules"`
}

// RuleDefaults are fallback options for rules.
type RuleDefaults struct {
	Priority int             `yaml:"priority"`
	Severity models.Severity `yaml:"severity"`
}

// LoadStats tracks loaded and skipped rules across files.
type LoadStats struct {
	TotalFiles      int
	Loaded          int
	SkippedInvalid  int
	SkippedDisabled int
}

var validActionTypes = map[models.ActionType]struct{}{
	models.ActionFlag:       {},
	models.ActionRemove:     {},
	models.ActionEscalate:   {},
	models.ActionWarn:       {},
	models.ActionQuarantine: {},
	models.ActionNotify:     {},
}

var validSeverities = map[models.Severity]struct{}{
	models.SeverityLow:      {},
	models.SeverityMedium:   {},
	models.SeverityHigh:     {},
	models.SeverityCritical: {},
}

// LoadRuleSet reads escalation rules from a YAML file or directory. Invalid
// and disabled rules are skipped and counted; a rule set that loads zero
// rules is not an error here (the engine simply matches nothing).
func LoadRuleSet(path string) ([]Rule, LoadStats, error) {
	var stats LoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := []string{resolved}
	if info.IsDir() {
		files = files[:0]
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else if !isYAMLFile(resolved) {
		return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
	}

	stats.TotalFiles = len(files)
	var out []Rule
	for _, ruleFile := range files {
		doc, err := parseRuleFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		for i := range doc.Rules {
			r := doc.Rules[i]
			applyRuleDefaults(&r, doc.Defaults, len(out)+1)
			if err := validateRule(&r); err != nil {
				stats.SkippedInvalid++
				continue
			}
			if !r.Enabled {
				// An omitted enabled: key reads as false; count and log so the
				// omission never passes silently.
				stats.SkippedDisabled++
				logger.Warnf("rule %s in %s is disabled and will never match; set enabled: true to activate it", r.ID, ruleFile)
				continue
			}
			out = append(out, r)
			stats.Loaded++
		}
	}
	return out, stats, nil
}

func parseRuleFile(path string) (*RuleFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}
	var doc RuleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	return &doc, nil
}

func applyRuleDefaults(r *Rule, defaults RuleDefaults, ordinal int) {
	if r.ID == "" {
		r.ID = fmt.Sprintf("rule-%d", ordinal)
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	if r.Priority == 0 {
		r.Priority = defaults.Priority
	}
	for i := range r.Actions {
		if r.Actions[i].Severity == "" {
			if defaults.Severity != "" {
				r.Actions[i].Severity = defaults.Severity
			} else {
				r.Actions[i].Severity = models.SeverityMedium
			}
		}
		r.Actions[i].Automated = true
	}
}

func validateRule(r *Rule) error {
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %s has no actions", r.ID)
	}
	for _, a := range r.Actions {
		if _, ok := validActionTypes[a.Type]; !ok {
			return fmt.Errorf("rule %s has unknown action type %q", r.ID, a.Type)
		}
		if _, ok := validSeverities[a.Severity]; !ok {
			return fmt.Errorf("rule %s has unknown severity %q", r.ID, a.Severity)
		}
	}
	c := r.Conditions
	if c.MinScore != nil && (*c.MinScore < 0 || *c.MinScore > 1) {
		return fmt.Errorf("rule %s min_score out of range", r.ID)
	}
	if c.MaxScore != nil && (*c.MaxScore < 0 || *c.MaxScore > 1) {
		return fmt.Errorf("rule %s max_score out of range", r.ID)
	}
	if c.MinScore != nil && c.MaxScore != nil && *c.MinScore > *c.MaxScore {
		return fmt.Errorf("rule %s has empty score range", r.ID)
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("rule %s min_confidence out of range", r.ID)
	}
	return nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}
