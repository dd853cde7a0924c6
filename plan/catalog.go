package plan

// Feature keys. These are also the usage-map keys persisted on a
// subscription, so renaming one orphans existing counters.
const (
	FeatureAITutorQueries = "aiTutorQueries"
	FeatureTaskGeneration = "taskGeneration"
	FeatureSkillsAnalysis = "skillsAnalysis"
	FeatureLearningPaths  = "learningPaths"
	FeatureAchievements   = "achievements"
)

// Features is the free-tier limit table.
var Features = []Feature{
	{Key: FeatureAITutorQueries, Name: "AI tutor queries", Limit: 20, Period: PeriodDaily},
	{Key: FeatureTaskGeneration, Name: "task generation", Limit: 3, Period: PeriodWeekly},
	{Key: FeatureSkillsAnalysis, Name: "skills analysis", Limit: 2, Period: PeriodWeekly},
	{Key: FeatureLearningPaths, Name: "learning paths", Limit: 5, Period: PeriodWeekly},
	{Key: FeatureAchievements, Name: "achievements", Limit: 2, Period: PeriodWeekly},
}

var byKey = func() map[string]Feature {
	m := make(map[string]Feature, len(Features))
	for _, f := range Features {
		m[f.Key] = f
	}
	return m
}()

// Lookup returns the feature registered under key.
func Lookup(key string) (Feature, bool) {
	f, ok := byKey[key]
	return f, ok
}

// Keys returns every known feature key in table order.
func Keys() []string {
	keys := make([]string, len(Features))
	for i, f := range Features {
		keys[i] = f.Key
	}
	return keys
}
