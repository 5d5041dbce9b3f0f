package notes

// StoredNote is the authoritative copy of a note kept by the document store.
type StoredNote struct {
	NoteID          string   `gorm:"column:note_id;primaryKey;size:190;not null"`
	UserID          string   `gorm:"column:user_id;size:190;not null;index:idx_notes_user_order,priority:1"`
	Title           string   `gorm:"column:title;type:text;not null"`
	Content         string   `gorm:"column:content;type:text;not null"`
	Tags            []string `gorm:"column:tags_json;type:text;not null;serializer:json"`
	Category        *string  `gorm:"column:category;size:190"`
	IsPinned        bool     `gorm:"column:is_pinned;not null;index:idx_notes_user_order,priority:2"`
	Color           *string  `gorm:"column:color;size:64"`
	CreatedAtMillis int64    `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64    `gorm:"column:updated_at_ms;not null;index:idx_notes_user_order,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (StoredNote) TableName() string {
	return "notes"
}

func (stored StoredNote) toNote() Note {
	tags := stored.Tags
	if tags == nil {
		tags = []string{}
	}
	return Note{
		ID:        NoteID(stored.NoteID),
		Title:     stored.Title,
		Content:   stored.Content,
		CreatedAt: stored.CreatedAtMillis,
		UpdatedAt: stored.UpdatedAtMillis,
		Tags:      cloneTags(tags),
		Category:  cloneString(stored.Category),
		IsPinned:  stored.IsPinned,
		Color:     cloneString(stored.Color),
		UserID:    UserID(stored.UserID),
	}
}

func storedFromNote(note Note) StoredNote {
	return StoredNote{
		NoteID:          note.ID.String(),
		UserID:          note.UserID.String(),
		Title:           note.Title,
		Content:         note.Content,
		Tags:            cloneTags(note.Tags),
		Category:        cloneString(note.Category),
		IsPinned:        note.IsPinned,
		Color:           cloneString(note.Color),
		CreatedAtMillis: note.CreatedAt,
		UpdatedAtMillis: note.UpdatedAt,
	}
}
