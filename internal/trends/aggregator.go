// Package trends detects emerging harmful clusters in the recent window of
// flagged content.
package trends

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"trendguard/internal/logger"
	"trendguard/internal/store"
	"trendguard/pkg/models"
)

// Config controls the aggregation passes.
type Config struct {
	Threshold          float64       // min avg harmfulness per group
	Lookback           time.Duration // scan window
	ViralityEngagement float64
	MinHashtagCount    int
	MinKeywordCount    int
	MinCrossPlatform   int
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.75
	}
	if c.Lookback <= 0 {
		c.Lookback = 24 * time.Hour
	}
	if c.ViralityEngagement <= 0 {
		c.ViralityEngagement = 1000
	}
	if c.MinHashtagCount <= 0 {
		c.MinHashtagCount = 10
	}
	if c.MinKeywordCount <= 0 {
		c.MinKeywordCount = 15
	}
	if c.MinCrossPlatform <= 0 {
		c.MinCrossPlatform = 20
	}
}

// Aggregator scans the flagged window and emits deduplicated trend candidates.
type Aggregator struct {
	store  store.ContentStore
	cfg    Config
	now    func() time.Time
	passes []pass
}

// NewAggregator creates an aggregator over the given content store.
func NewAggregator(st store.ContentStore, cfg Config) *Aggregator {
	cfg.applyDefaults()
	a := &Aggregator{store: st, cfg: cfg, now: time.Now}
	a.passes = []pass{
		{name: "hashtag", run: a.groupByHashtag},
		{name: "keyword", run: a.groupByKeyword},
		{name: "cross_platform", run: a.groupCrossPlatform},
	}
	return a
}

type pass struct {
	name string
	run  func(items []store.FlaggedItem) []Aggregate
}

// Detect runs the three grouping passes over one lookback window and returns
// trends ranked by harmfulness x virality descending. A failing pass only
// loses its own contribution.
func (a *Aggregator) Detect(ctx context.Context) ([]*models.TrendData, error) {
	now := a.now().UTC()
	items, err := a.store.FlaggedSince(ctx, now.Add(-a.cfg.Lookback))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	scoreCfg := ScoreConfig{ViralityEngagement: a.cfg.ViralityEngagement}
	byID := make(map[string]*models.TrendData)
	var out []*models.TrendData

	for _, p := range a.passes {
		aggs := a.runPass(p, items)
		for _, agg := range aggs {
			trend := Score(agg, scoreCfg, now)
			if _, ok := byID[trend.ID]; ok {
				continue // first-seen wins across passes
			}
			byID[trend.ID] = trend
			out = append(out, trend)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Rank() > out[j].Rank()
	})
	return out, nil
}

// runPass isolates a single grouping pass so one bad pass never aborts the cycle.
func (a *Aggregator) runPass(p pass, items []store.FlaggedItem) (aggs []Aggregate) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("trend pass %s failed: %v", p.name, r)
			aggs = nil
		}
	}()
	return p.run(items)
}

func (a *Aggregator) groupByHashtag(items []store.FlaggedItem) []Aggregate {
	groups := make(map[string][]store.FlaggedItem)
	for _, item := range items {
		for _, tag := range item.Content.Hashtags {
			key := strings.ToLower(strings.TrimSpace(tag))
			if key == "" {
				continue
			}
			groups[key] = append(groups[key], item)
		}
	}
	return a.collect("hashtag", groups, a.cfg.MinHashtagCount, 1, func(key string) []string {
		return []string{key}
	})
}

func (a *Aggregator) groupByKeyword(items []store.FlaggedItem) []Aggregate {
	groups := make(map[string][]store.FlaggedItem)
	for _, item := range items {
		for _, word := range extractKeywords(item.Content.Body.Text) {
			groups[word] = append(groups[word], item)
		}
	}
	return a.collect("keyword", groups, a.cfg.MinKeywordCount, 1, func(key string) []string {
		return []string{key}
	})
}

func (a *Aggregator) groupCrossPlatform(items []store.FlaggedItem) []Aggregate {
	groups := make(map[string][]store.FlaggedItem)
	signals := make(map[string][]string)
	for _, item := range items {
		set := NormalizeSignals(append(append([]string{}, item.Detection.Categories...), item.Content.Hashtags...))
		if len(set) == 0 {
			continue
		}
		key := strings.Join(set, "|")
		groups[key] = append(groups[key], item)
		signals[key] = set
	}
	return a.collect("cross_platform", groups, a.cfg.MinCrossPlatform, 2, func(key string) []string {
		return signals[key]
	})
}

// collect filters raw groups by occurrence count, platform spread and average
// harmfulness, then summarizes the survivors.
func (a *Aggregator) collect(source string, groups map[string][]store.FlaggedItem, minCount, minPlatforms int, signalsFor func(key string) []string) []Aggregate {
	var out []Aggregate
	for key, members := range groups {
		if len(members) < minCount {
			continue
		}

		platforms := make(map[string]struct{})
		categories := make(map[string]struct{})
		var harmSum, engSum float64
		first, last := members[0].Content.PublishedAt, members[0].Content.PublishedAt
		for _, m := range members {
			platforms[m.Content.Platform] = struct{}{}
			for _, c := range m.Detection.Categories {
				categories[c] = struct{}{}
			}
			harmSum += m.Detection.HarmfulnessScore
			engSum += float64(m.Content.Engagement.Total())
			if m.Content.PublishedAt.Before(first) {
				first = m.Content.PublishedAt
			}
			if m.Content.PublishedAt.After(last) {
				last = m.Content.PublishedAt
			}
		}
		if len(platforms) < minPlatforms {
			continue
		}

		avgHarm := harmSum / float64(len(members))
		if avgHarm < a.cfg.Threshold {
			continue
		}

		out = append(out, Aggregate{
			Source:         source,
			Signals:        signalsFor(key),
			Platforms:      sortedKeys(platforms),
			Categories:     sortedKeys(categories),
			ContentCount:   len(members),
			AvgHarmfulness: avgHarm,
			AvgEngagement:  engSum / float64(len(members)),
			FirstSeen:      first,
			LastSeen:       last,
		})
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const minKeywordLen = 4

// extractKeywords tokenizes text into lowercase words of at least four
// characters with stopwords removed.
func extractKeywords(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minKeywordLen {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "will": {},
	"your": {}, "about": {}, "they": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "their": {}, "there": {}, "would": {}, "could": {}, "should": {},
	"been": {}, "were": {}, "them": {}, "then": {}, "than": {}, "some": {},
	"more": {}, "very": {}, "just": {}, "like": {}, "into": {}, "over": {},
	"only": {}, "also": {}, "after": {}, "before": {}, "because": {}, "while": {},
	"these": {}, "those": {}, "such": {}, "each": {}, "most": {}, "other": {},
	"many": {}, "much": {}, "even": {}, "here": {}, "does": {}, "doing": {},
	"being": {}, "having": {}, "again": {}, "still": {}, "really": {},
}
