package contentindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "posts"

// ChromemIndex is the C3 Index backed by chromem-go, an embedded pure-Go
// vector database. Ownership of (post_id, user_id) pairs — needed for
// spec.md §4.3's exact delete semantics — is tracked in a local map
// alongside the vector store, since chromem-go's contract is query/insert
// over embeddings, not a general key-value lookup.
type ChromemIndex struct {
	mu      sync.Mutex
	coll    *chromem.Collection
	encoder Encoder
	owners  map[string]string // post_id -> user_id
	sidecar string            // path to persist owners, empty when purely in-memory
	dupDistance float64
}

// NewChromemIndex opens (or creates) a collection at path. An empty path
// runs chromem-go in pure in-memory mode, satisfying local development
// and the test suite without any on-disk state.
func NewChromemIndex(path string, dupDistance float64, encoder Encoder) (*ChromemIndex, error) {
	if encoder == nil {
		encoder = NewHashEncoder()
	}
	var db *chromem.DB
	var err error
	var sidecar string
	if path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create vector store dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		sidecar = filepath.Join(path, "owners.json")
	}

	coll, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	idx := &ChromemIndex{
		coll:        coll,
		encoder:     encoder,
		owners:      make(map[string]string),
		sidecar:     sidecar,
		dupDistance: dupDistance,
	}
	idx.loadOwners()
	return idx, nil
}

func (idx *ChromemIndex) loadOwners() {
	if idx.sidecar == "" {
		return
	}
	raw, err := os.ReadFile(idx.sidecar)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, &idx.owners)
}

func (idx *ChromemIndex) persistOwnersLocked() {
	if idx.sidecar == "" {
		return
	}
	raw, err := json.Marshal(idx.owners)
	if err != nil {
		return
	}
	_ = os.WriteFile(idx.sidecar, raw, 0o644)
}

func (idx *ChromemIndex) Insert(ctx context.Context, post Post) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.owners[post.PostID]; exists {
		return ErrConflict
	}

	emb := idx.encoder.Embed(post.Content, post.Image)
	doc := chromem.Document{
		ID:        post.PostID,
		Content:   post.Content,
		Embedding: emb,
		Metadata:  map[string]string{"user_id": post.UserID},
	}
	if err := idx.coll.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	idx.owners[post.PostID] = post.UserID
	idx.persistOwnersLocked()
	return nil
}

func (idx *ChromemIndex) Nearest(ctx context.Context, content string, image []byte) (Match, bool, error) {
	count := idx.coll.Count()
	if count == 0 {
		return Match{}, false, nil
	}
	emb := idx.encoder.Embed(content, image)
	results, err := idx.coll.QueryEmbedding(ctx, emb, 1, nil, nil)
	if err != nil {
		return Match{}, false, fmt.Errorf("query embedding: %w", err)
	}
	if len(results) == 0 {
		return Match{}, false, nil
	}
	best := results[0]
	distance := 1 - float64(best.Similarity)
	if distance < 0 {
		distance = 0
	}
	if distance > 1 {
		distance = 1
	}
	return Match{Distance: distance, MatchedID: best.ID}, true, nil
}

func (idx *ChromemIndex) Delete(ctx context.Context, postID, userID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	owner, exists := idx.owners[postID]
	if !exists {
		return ErrNotFound
	}
	if owner != userID {
		return ErrUserMismatch
	}
	if err := idx.coll.Delete(ctx, nil, nil, postID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	delete(idx.owners, postID)
	idx.persistOwnersLocked()
	return nil
}

func (idx *ChromemIndex) Count(_ context.Context) (int, error) {
	return idx.coll.Count(), nil
}
