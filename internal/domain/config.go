package domain

// DisplayType selects which secondary dataset an instance fetches and renders.
type DisplayType string

const (
	DisplayWorkoutCount   DisplayType = "workout_count"
	DisplayRecentWorkouts DisplayType = "recent_workouts"
	DisplayChallenges     DisplayType = "challenges"
)

// SortOrder controls how workout category counts are ordered.
type SortOrder string

const (
	SortAlphaAsc  SortOrder = "alpha_asc"
	SortAlphaDesc SortOrder = "alpha_desc"
	SortCountAsc  SortOrder = "count_asc"
	SortCountDesc SortOrder = "count_desc"
)

const (
	// DefaultRecentWorkoutsLimit replaces any limit outside [MinRecentWorkoutsLimit, MaxRecentWorkoutsLimit].
	DefaultRecentWorkoutsLimit = 5
	MinRecentWorkoutsLimit     = 1
	MaxRecentWorkoutsLimit     = 10

	// DefaultRefreshEverySeconds is the refresh period used when none is configured.
	DefaultRefreshEverySeconds = 300
)

// InstanceConfig is the per-widget option set supplied with SET_CONFIG.
type InstanceConfig struct {
	Username            string      `json:"username" yaml:"username"`
	Password            string      `json:"password" yaml:"password"`
	DisplayType         DisplayType `json:"displayType" yaml:"displayType"`
	CategoriesToOmit    []string    `json:"categoriesToOmit" yaml:"categoriesToOmit"`
	ShowZeroCounts      *bool       `json:"showZeroCounts,omitempty" yaml:"showZeroCounts,omitempty"`
	SortOrder           SortOrder   `json:"sortOrder" yaml:"sortOrder"`
	RecentWorkoutsLimit int         `json:"recentWorkoutsLimit" yaml:"recentWorkoutsLimit"`
	RefreshEverySeconds int         `json:"refreshEverySeconds" yaml:"refreshEverySeconds"`
	Debug               bool        `json:"debug" yaml:"debug"`
}

// Normalize returns a copy with defaults applied and the recent workouts limit clamped.
// It is applied once when an instance is created.
func (c InstanceConfig) Normalize() InstanceConfig {
	out := c
	if out.RecentWorkoutsLimit < MinRecentWorkoutsLimit || out.RecentWorkoutsLimit > MaxRecentWorkoutsLimit {
		out.RecentWorkoutsLimit = DefaultRecentWorkoutsLimit
	}
	if out.RefreshEverySeconds <= 0 {
		out.RefreshEverySeconds = DefaultRefreshEverySeconds
	}
	if out.DisplayType == "" {
		out.DisplayType = DisplayWorkoutCount
	}
	if out.SortOrder == "" {
		out.SortOrder = SortAlphaAsc
	}
	if out.ShowZeroCounts == nil {
		show := true
		out.ShowZeroCounts = &show
	}
	if len(c.CategoriesToOmit) > 0 {
		out.CategoriesToOmit = append([]string(nil), c.CategoriesToOmit...)
	}
	return out
}

// ShouldShowZeroCounts reports whether categories with a zero count are displayed.
func (c InstanceConfig) ShouldShowZeroCounts() bool {
	return c.ShowZeroCounts == nil || *c.ShowZeroCounts
}

// HasCredentials reports whether both username and password are set.
func (c InstanceConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// SameCredentials reports whether two configs authenticate as the same account.
func (c InstanceConfig) SameCredentials(other InstanceConfig) bool {
	return c.Username == other.Username && c.Password == other.Password
}

// Redacted returns a copy safe to expose outside the process.
func (c InstanceConfig) Redacted() InstanceConfig {
	out := c
	if out.Password != "" {
		out.Password = "********"
	}
	return out
}
