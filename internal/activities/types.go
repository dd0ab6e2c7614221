package activities

// BuildArchiveRequest is the input of BuildArchive. It carries the same fields
// as a build request file.
type BuildArchiveRequest struct {
	RunID    string         `json:"runId,omitempty"`
	Basename string         `json:"basename"`
	Platform string         `json:"platform"`
	Version  string         `json:"version,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Archives []ArchiveRef   `json:"archives"`
}

// ArchiveRef names one mirrored archive.
type ArchiveRef struct {
	Path      string `json:"path"`
	AddedDate string `json:"addedDate,omitempty"`
}

// BuildArchiveResult summarizes a finished build.
type BuildArchiveResult struct {
	Basename   string        `json:"basename"`
	Platform   string        `json:"platform"`
	Version    string        `json:"version"`
	Artifacts  []ArtifactRef `json:"artifacts,omitempty"`
	SoftErrors int           `json:"softErrors"`
	Logs       []LogEntry    `json:"logs,omitempty"`
}

// ArtifactRef describes one published artifact.
type ArtifactRef struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	MD5      string   `json:"md5"`
	Size     int64    `json:"size"`
	ErrorLog string   `json:"errorLog,omitempty"`
	Objects  []string `json:"objects,omitempty"`
}

// LogEntry for activity logging
type LogEntry struct {
	Level   string         `json:"level"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}
