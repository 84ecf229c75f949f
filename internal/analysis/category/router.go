package category

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

// Urgency 表示请求的紧急程度。
type Urgency string

const (
	Critical Urgency = "critical"
	Medium   Urgency = "medium"
)

// Terms 是每个服务类别对应的关键词表，外加一组紧急程度关键词。
// Exclusions 中的短语在匹配该类别前会从文本中去掉，
// 例如 "heart attack" 不应让 "attack" 触发警务。
type Terms struct {
	Categories map[facility.Category][]string
	Exclusions map[facility.Category][]string
	Urgency    []string
}

// Result 给出分类结果。Categories 至少包含一个元素：无命中时为 General。
type Result struct {
	Categories   []facility.Category            `json:"categories"`
	Matches      map[facility.Category][]string `json:"matches,omitempty"`
	MultiService bool                           `json:"multi_service"`
	Urgency      Urgency                        `json:"urgency"`
	Confidence   int                            `json:"confidence"`
	Reason       string                         `json:"reason"`
}

// Has 判断结果中是否包含指定类别。
func (r Result) Has(category facility.Category) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// General 报告是否未命中任何服务类别。
func (r Result) General() bool {
	return len(r.Categories) == 1 && r.Categories[0] == facility.General
}

// Router 基于关键词子串匹配进行多类别路由。词表可在运行时整体替换。
type Router struct {
	table atomic.Pointer[Terms]
}

// NewRouter 使用给定词表创建路由器；nil 表示使用内置默认词表。
func NewRouter(terms *Terms) *Router {
	r := &Router{}
	if terms == nil {
		terms = DefaultTerms()
	}
	r.Replace(terms)
	return r
}

// Replace 原子地替换词表，读者不会看到半更新状态。
func (r *Router) Replace(terms *Terms) {
	r.table.Store(normalizeTerms(terms))
}

// Terms 返回当前词表的副本。
func (r *Router) Terms() *Terms {
	return cloneTerms(r.table.Load())
}

// Classify 对文本做大小写不敏感的子串匹配，返回所有命中的类别。
func (r *Router) Classify(text string) Result {
	terms := r.table.Load()
	normalized := strings.ToLower(strings.TrimSpace(text))

	matches := make(map[facility.Category][]string)
	total := 0
	if normalized != "" {
		for _, category := range facility.Categories() {
			candidate := normalized
			for _, phrase := range terms.Exclusions[category] {
				candidate = strings.ReplaceAll(candidate, phrase, " ")
			}
			for _, word := range terms.Categories[category] {
				if strings.Contains(candidate, word) {
					matches[category] = append(matches[category], word)
					total++
				}
			}
		}
	}

	urgency := Medium
	if normalized != "" {
		for _, word := range terms.Urgency {
			if strings.Contains(normalized, word) {
				urgency = Critical
				break
			}
		}
	}

	categories := make([]facility.Category, 0, len(matches))
	for _, category := range facility.Categories() {
		if len(matches[category]) > 0 {
			categories = append(categories, category)
		}
	}

	switch len(categories) {
	case 0:
		return Result{
			Categories: []facility.Category{facility.General},
			Urgency:    urgency,
			Confidence: 50,
			Reason:     "no service keywords matched",
		}
	case 1:
		return Result{
			Categories: categories,
			Matches:    matches,
			Urgency:    urgency,
			Confidence: min(90, total*15),
			Reason:     fmt.Sprintf("%s keywords: %s", categories[0], strings.Join(matches[categories[0]], ", ")),
		}
	default:
		parts := make([]string, 0, len(categories))
		for _, category := range categories {
			parts = append(parts, fmt.Sprintf("%s (%s)", category, strings.Join(matches[category], ", ")))
		}
		return Result{
			Categories:   categories,
			Matches:      matches,
			MultiService: true,
			Urgency:      urgency,
			Confidence:   min(95, total*10),
			Reason:       "multiple services needed: " + strings.Join(parts, "; "),
		}
	}
}

// Classify 使用默认词表进行分类。
func Classify(text string) Result {
	return defaultRouter.Classify(text)
}

var defaultRouter = NewRouter(nil)

func normalizeTerms(in *Terms) *Terms {
	out := &Terms{
		Categories: make(map[facility.Category][]string, 3),
		Exclusions: make(map[facility.Category][]string),
	}
	if in == nil {
		return out
	}
	for category, words := range in.Categories {
		out.Categories[category] = normalizeWords(words)
	}
	for category, phrases := range in.Exclusions {
		out.Exclusions[category] = normalizeWords(phrases)
	}
	out.Urgency = normalizeWords(in.Urgency)
	return out
}

func normalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func cloneTerms(in *Terms) *Terms {
	out := &Terms{
		Categories: make(map[facility.Category][]string, len(in.Categories)),
		Exclusions: make(map[facility.Category][]string, len(in.Exclusions)),
	}
	for category, words := range in.Categories {
		out.Categories[category] = append([]string(nil), words...)
	}
	for category, phrases := range in.Exclusions {
		out.Exclusions[category] = append([]string(nil), phrases...)
	}
	out.Urgency = append([]string(nil), in.Urgency...)
	return out
}
