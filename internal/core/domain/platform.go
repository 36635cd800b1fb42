package domain

// Platform is a publishing destination for adapted content.
type Platform string

// Supported platforms.
const (
	PlatformLinkedIn    Platform = "linkedin"
	PlatformTwitter     Platform = "twitter"
	PlatformWeChat      Platform = "wechat"
	PlatformXiaohongshu Platform = "xiaohongshu"
)

// AllPlatforms returns every supported platform.
func AllPlatforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformTwitter, PlatformWeChat, PlatformXiaohongshu}
}

// IsValid returns true if the platform is recognised.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformLinkedIn, PlatformTwitter, PlatformWeChat, PlatformXiaohongshu:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p Platform) String() string {
	return string(p)
}

// PlatformRules is the snapshot of platform constraints used when adapting.
type PlatformRules struct {
	MaxLength    int    `yaml:"max_length" json:"max_length"`
	MaxHashtags  int    `yaml:"max_hashtags" json:"max_hashtags"`
	AllowsLinks  bool   `yaml:"allows_links" json:"allows_links"`
	Tone         string `yaml:"tone,omitempty" json:"tone,omitempty"`
	OptimalHours []int  `yaml:"optimal_hours,omitempty" json:"optimal_hours,omitempty"`
}

// Rules returns the built-in rules for the platform.
// Unknown platforms get a zero value.
func (p Platform) Rules() PlatformRules {
	switch p {
	case PlatformLinkedIn:
		return PlatformRules{MaxLength: 3000, MaxHashtags: 5, AllowsLinks: true, Tone: "professional", OptimalHours: []int{8, 12, 17}}
	case PlatformTwitter:
		return PlatformRules{MaxLength: 280, MaxHashtags: 2, AllowsLinks: true, Tone: "concise", OptimalHours: []int{9, 13, 20}}
	case PlatformWeChat:
		return PlatformRules{MaxLength: 20000, MaxHashtags: 3, AllowsLinks: false, Tone: "in-depth", OptimalHours: []int{7, 21}}
	case PlatformXiaohongshu:
		return PlatformRules{MaxLength: 1000, MaxHashtags: 10, AllowsLinks: false, Tone: "personal", OptimalHours: []int{12, 19, 22}}
	default:
		return PlatformRules{}
	}
}
