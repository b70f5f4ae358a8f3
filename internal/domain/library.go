package domain

// Library holds the set of book ids a user has added. Membership is a
// set: unordered, no duplicates.
type Library struct {
	Meta

	UserID string   `json:"userId"`
	Books  []string `json:"books"`
}

// Has reports membership of the given book id.
func (l *Library) Has(bookID string) bool {
	for _, id := range l.Books {
		if id == bookID {
			return true
		}
	}
	return false
}

// Add inserts the book id if absent. Returns true when membership changed.
func (l *Library) Add(bookID string) bool {
	if l.Has(bookID) {
		return false
	}
	l.Books = append(l.Books, bookID)
	return true
}

// Remove deletes the book id if present. Returns true when membership changed.
func (l *Library) Remove(bookID string) bool {
	for i, id := range l.Books {
		if id == bookID {
			l.Books = append(l.Books[:i], l.Books[i+1:]...)
			return true
		}
	}
	return false
}
