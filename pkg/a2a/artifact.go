package a2a

/*
Artifact is a named output attached to a task. Identity for the merge
invariant (I-T2) prefers ArtifactID, falls back to ID, then Name.
*/
type Artifact struct {
	ArtifactID  string         `json:"artifactId,omitempty"`
	ID          string         `json:"id,omitempty"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Index       int            `json:"index,omitempty"`
	Append      *bool          `json:"append,omitempty"`
	LastChunk   *bool          `json:"lastChunk,omitempty"`
}

// Identity returns the artifact's merge key and whether one could be
// determined at all. An artifact with no determinable identity is always
// appended rather than merged (spec §3, I-T2).
func (a Artifact) Identity() (string, bool) {
	if a.ArtifactID != "" {
		return a.ArtifactID, true
	}
	if a.ID != "" {
		return a.ID, true
	}
	if a.Name != nil && *a.Name != "" {
		return *a.Name, true
	}
	return "", false
}

func NewFileArtifact(name string, mimeType string, data string) Artifact {
	return Artifact{
		Name: &name,
		Parts: []Part{
			{
				Type: PartTypeFile,
				File: &FilePart{
					MimeType: &mimeType,
					Data:     data,
				},
			},
		},
	}
}
