package session

// Policy holds the heuristic constants the manager uses to score and
// classify sessions. The values were previously embedded in control flow;
// keeping them in one table makes the behaviour data-driven and lets the
// configuration override individual knobs without touching code.
type Policy struct {
	// Similarity weights. They should sum to 1.0 but are applied as given.
	ThemeWeight    float64 `yaml:"theme_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	EntityWeight   float64 `yaml:"entity_weight"`
	TemporalWeight float64 `yaml:"temporal_weight"`

	// RelatedThreshold is the minimum weighted score for a session to be
	// recorded as related.
	RelatedThreshold float64 `yaml:"related_threshold"`

	// ParallelThreshold: a related score above this marks the new session
	// as parallel research.
	ParallelThreshold float64 `yaml:"parallel_threshold"`

	// InheritThreshold is the minimum related score for knowledge items to
	// be inherited from a related (non-parent) session.
	InheritThreshold float64 `yaml:"inherit_threshold"`

	// MaxRelated caps how many related sessions are recorded.
	MaxRelated int `yaml:"max_related"`

	// MaxInherited caps how many knowledge items a session inherits.
	MaxInherited int `yaml:"max_inherited"`

	// RelatedWindowDays bounds how far back the related-session scan looks.
	RelatedWindowDays int `yaml:"related_window_days"`

	// ParentDepthBaseline is the depth a parent session is assumed to have
	// when classifying a child as deep_dive / continuation / related.
	ParentDepthBaseline int `yaml:"parent_depth_baseline"`

	// CoveredBasics lists focus phrases that, once covered by an ancestor,
	// a child session should not repeat.
	CoveredBasics []string `yaml:"covered_basics"`

	// DeepDiveType is the learning type treated as a deep dive when
	// computing avoided duplicates.
	DeepDiveType string `yaml:"deep_dive_type"`

	// TopicMap maps a substring found in a focus area to follow-up themes
	// suggested as related exploration.
	TopicMap map[string][]string `yaml:"topic_map"`
}

// DefaultPolicy returns the stock policy. The Japanese phrases mirror the
// learning-type vocabulary the Setsuna persona uses for its sessions.
func DefaultPolicy() Policy {
	return Policy{
		ThemeWeight:         0.4,
		KeywordWeight:       0.3,
		EntityWeight:        0.2,
		TemporalWeight:      0.1,
		RelatedThreshold:    0.3,
		ParallelThreshold:   0.8,
		InheritThreshold:    0.7,
		MaxRelated:          5,
		MaxInherited:        10,
		RelatedWindowDays:   30,
		ParentDepthBaseline: 3,
		CoveredBasics:       []string{"基本概念", "歴史的経緯"},
		DeepDiveType:        "深掘り",
		TopicMap: map[string][]string{
			"音楽": {"作曲理論の調査", "音楽制作ツールの比較"},
			"AI":  {"機械学習の基礎調査", "生成モデルの最新動向"},
			"技術": {"実装事例の調査", "開発ツールの比較"},
			"生成": {"プロンプト設計の調査", "出力品質の評価手法"},
		},
	}
}

// withDefaults fills zero-valued fields of p from [DefaultPolicy].
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.ThemeWeight == 0 && p.KeywordWeight == 0 && p.EntityWeight == 0 && p.TemporalWeight == 0 {
		p.ThemeWeight = def.ThemeWeight
		p.KeywordWeight = def.KeywordWeight
		p.EntityWeight = def.EntityWeight
		p.TemporalWeight = def.TemporalWeight
	}
	if p.RelatedThreshold == 0 {
		p.RelatedThreshold = def.RelatedThreshold
	}
	if p.ParallelThreshold == 0 {
		p.ParallelThreshold = def.ParallelThreshold
	}
	if p.InheritThreshold == 0 {
		p.InheritThreshold = def.InheritThreshold
	}
	if p.MaxRelated == 0 {
		p.MaxRelated = def.MaxRelated
	}
	if p.MaxInherited == 0 {
		p.MaxInherited = def.MaxInherited
	}
	if p.RelatedWindowDays == 0 {
		p.RelatedWindowDays = def.RelatedWindowDays
	}
	if p.ParentDepthBaseline == 0 {
		p.ParentDepthBaseline = def.ParentDepthBaseline
	}
	if p.CoveredBasics == nil {
		p.CoveredBasics = def.CoveredBasics
	}
	if p.DeepDiveType == "" {
		p.DeepDiveType = def.DeepDiveType
	}
	if p.TopicMap == nil {
		p.TopicMap = def.TopicMap
	}
	return p
}
