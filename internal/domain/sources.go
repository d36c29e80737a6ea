package domain

// Principal is a verified caller identity.
type Principal struct {
	Subject string
	Role    string
	// Sources restricts content-API sites when non-empty.
	Sources []string
}

type ContentSite struct {
	Key      string   `yaml:"key" json:"key"`
	Name     string   `yaml:"name" json:"name"`
	API      string   `yaml:"api" json:"api"`
	Weight   int      `yaml:"weight" json:"weight"`
	Disabled bool     `yaml:"disabled" json:"disabled"`
	Roles    []string `yaml:"roles" json:"roles,omitempty"`
}

type MediaServerInstance struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	URL     string `yaml:"url" json:"url"`
	APIKey  string `yaml:"apiKey" json:"-"`
	UserID  string `yaml:"userId" json:"userId,omitempty"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Weight  int    `yaml:"weight" json:"weight"`
}

type LocalCatalogSettings struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"-"`
	Password string `yaml:"password" json:"-"`
	RootPath string `yaml:"rootPath" json:"rootPath,omitempty"`
	Weight   int    `yaml:"weight" json:"weight"`
}

// Complete reports whether every setting needed to query the catalog is present.
func (s LocalCatalogSettings) Complete() bool {
	return s.Enabled && s.URL != "" && s.Username != "" && s.Password != ""
}

// MediaItem is the native shape returned by a media server before normalization.
type MediaItem struct {
	ID             string
	Name           string
	Type           string
	ProductionYear int
	Overview       string
	ImageURL       string
}

type CatalogEntry struct {
	Folder    string `json:"folder"`
	Path      string `json:"path"`
	Title     string `json:"title,omitempty"`
	Year      int    `json:"year,omitempty"`
	PosterURL string `json:"poster,omitempty"`
	Overview  string `json:"overview,omitempty"`
	TMDBID    int    `json:"tmdbId,omitempty"`
}
