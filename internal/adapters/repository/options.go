package repository

import model "github.com/okian/readq/internal/domain/model"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithBooks seeds the store, e.g. with a deliberately broken queue in tests.
func WithBooks(books ...model.Book) Option {
	return func(s *MemoryStore) {
		for _, b := range books {
			s.state.books[b.ID] = cloneBook(b)
		}
	}
}
