package notes

// NotePatch describes a partial update. Nil fields are left untouched; the
// owner and identity of a note are never patchable.
type NotePatch struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Category *string   `json:"category,omitempty"`
	IsPinned *bool     `json:"isPinned,omitempty"`
	Color    *string   `json:"color,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (patch NotePatch) IsEmpty() bool {
	return patch.Title == nil &&
		patch.Content == nil &&
		patch.Tags == nil &&
		patch.Category == nil &&
		patch.IsPinned == nil &&
		patch.Color == nil
}

// Apply merges the patch into a copy of the note. An empty category or color
// clears the optional field.
func (patch NotePatch) Apply(note Note) Note {
	updated := note.Clone()
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Content != nil {
		updated.Content = *patch.Content
	}
	if patch.Tags != nil {
		updated.Tags = cloneTags(*patch.Tags)
	}
	if patch.Category != nil {
		updated.Category = optionalString(*patch.Category)
	}
	if patch.IsPinned != nil {
		updated.IsPinned = *patch.IsPinned
	}
	if patch.Color != nil {
		updated.Color = optionalString(*patch.Color)
	}
	return updated
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}
