package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

// RoutingConfig 描述分类词表文件以及是否热加载。
type RoutingConfig struct {
	TermsFile string
	Watch     bool
}

func loadRoutingConfig() (RoutingConfig, error) {
	watch, err := parseBoolEnv("ROUTING_TERMS_WATCH", false)
	if err != nil {
		return RoutingConfig{}, err
	}
	return RoutingConfig{
		TermsFile: strings.TrimSpace(os.Getenv("ROUTING_TERMS_FILE")),
		Watch:     watch,
	}, nil
}

const (
	TermsModeExtend  = "extend"
	TermsModeReplace = "replace"
)

// TermsFile 是词表文件的结构。JSON 作为 YAML 的子集同样可用。
type TermsFile struct {
	// Mode 为 extend（默认，追加到内置词表）或 replace（覆盖非空的列表）。
	Mode    string   `json:"mode" yaml:"mode"`
	Medical []string `json:"medical" yaml:"medical"`
	Fire    []string `json:"fire" yaml:"fire"`
	Police  []string `json:"police" yaml:"police"`
	Urgency []string `json:"urgency" yaml:"urgency"`
	// Exclude 按类别列出匹配前要忽略的短语，键为 medical/fire/police。
	Exclude map[string][]string `json:"exclude" yaml:"exclude"`
}

// LoadTerms 读取词表文件并与内置词表合并。
func LoadTerms(path string) (*category.Terms, error) {
	base := category.DefaultTerms()
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return base, errors.New("empty routing terms file")
	}

	var parsed struct {
		Routing TermsFile `json:"routing" yaml:"routing"`
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &parsed)
	default:
		err = yaml.Unmarshal(data, &parsed)
	}
	if err != nil {
		return base, fmt.Errorf("parse %s: %w", path, err)
	}

	return MergeTerms(base, parsed.Routing)
}

// MergeTerms 将文件中的词表叠加到 base 上。
func MergeTerms(base *category.Terms, override TermsFile) (*category.Terms, error) {
	mode := strings.ToLower(strings.TrimSpace(override.Mode))
	if mode == "" {
		mode = TermsModeExtend
	}
	if mode != TermsModeExtend && mode != TermsModeReplace {
		return base, fmt.Errorf("invalid routing mode %q: want extend or replace", override.Mode)
	}

	merge := func(current, extra []string) []string {
		if len(extra) == 0 {
			return current
		}
		if mode == TermsModeReplace {
			return append([]string(nil), extra...)
		}
		return append(append([]string(nil), current...), extra...)
	}

	out := &category.Terms{Categories: make(map[facility.Category][]string, len(base.Categories))}
	for k, v := range base.Categories {
		out.Categories[k] = v
	}
	out.Categories[facility.Medical] = merge(base.Categories[facility.Medical], override.Medical)
	out.Categories[facility.Fire] = merge(base.Categories[facility.Fire], override.Fire)
	out.Categories[facility.Police] = merge(base.Categories[facility.Police], override.Police)
	out.Urgency = merge(base.Urgency, override.Urgency)

	out.Exclusions = make(map[facility.Category][]string, len(base.Exclusions))
	for k, v := range base.Exclusions {
		out.Exclusions[k] = v
	}
	for raw, phrases := range override.Exclude {
		cat, ok := facility.ParseCategory(raw)
		if !ok || cat == facility.General {
			return base, fmt.Errorf("invalid exclude category %q", raw)
		}
		out.Exclusions[cat] = merge(out.Exclusions[cat], phrases)
	}
	return out, nil
}
