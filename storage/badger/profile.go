package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// ProfileRepository implements storage.ProfileRepository for BadgerDB.
//
// Profiles are stored under their ID with two secondary indexes mapping
// email and cookie to the owning ID.
type ProfileRepository struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(backend *Backend) (*ProfileRepository, error) {
	return &ProfileRepository{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases resources. ProfileRepository has no resources to release.
func (r *ProfileRepository) Close() error {
	return nil
}

// FindSimilar delegates to the backend's exact scan.
func (r *ProfileRepository) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error) {
	return r.backend.FindSimilar(ctx, vector, limit)
}

// Snapshot reads every stored profile within one read transaction.
func (r *ProfileRepository) Snapshot(ctx context.Context) ([]*core.Profile, error) {
	var results []*core.Profile
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(profilePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var profile *core.Profile
			err := iter.Item().Value(func(val []byte) error {
				var err error
				profile, err = storage.UnmarshalProfile(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, profile)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// InsertProfiles stores new profiles. See storage.ProfileRepository.
func (r *ProfileRepository) InsertProfiles(ctx context.Context, profiles ...*core.Profile) (*core.WriteResult, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	now := r.now()
	errs := r.backend.writeBatch(ctx, len(profiles), func(tx *badger.Txn, i int) error {
		return r.insert(tx, profiles[i], now)
	})
	return collect(profiles, errs), nil
}

func (r *ProfileRepository) insert(tx *badger.Txn, profile *core.Profile, now time.Time) error {
	if err := core.ValidateProfile(profile); err != nil {
		return err
	}
	if profile.Id == 0 {
		profile.Id = core.IDFromContent(profile.IdentityKey())
	}

	key := makeProfileKey(profile.Id)
	exists, err := keyExists(tx, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: id %d", storage.ErrDuplicateKey, profile.Id)
	}
	if err := checkIndexOwner(tx, profile.Id, makeEmailKey(profile.Email), profile.Email); err != nil {
		return err
	}
	if err := checkIndexOwner(tx, profile.Id, makeCookieKey(profile.Cookie), profile.Cookie); err != nil {
		return err
	}

	profile.InsertedAt = now
	profile.UpdatedAt = now

	if err := tx.Set(key, storage.MarshalProfile(profile)); err != nil {
		return err
	}
	return setIndexes(tx, profile)
}

// UpdateProfiles applies targeted updates. See storage.ProfileRepository.
func (r *ProfileRepository) UpdateProfiles(ctx context.Context, updates ...*core.ProfileUpdate) (*core.WriteResult, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	now := r.now()
	errs := r.backend.writeBatch(ctx, len(updates), func(tx *badger.Txn, i int) error {
		return r.update(tx, updates[i], now)
	})

	result := &core.WriteResult{}
	for i, u := range updates {
		key := ""
		if u.Patch != nil {
			key = u.Patch.IdentityKey()
		}
		result.Record(u.Id, key, errs[i])
	}
	return result, nil
}

func (r *ProfileRepository) update(tx *badger.Txn, u *core.ProfileUpdate, now time.Time) error {
	if u.Patch == nil {
		return fmt.Errorf("%w: empty patch for id %d", core.ErrInvalidProfile, u.Id)
	}
	key := makeProfileKey(u.Id)
	old, err := readProfile(tx, key)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("%w: id %d", storage.ErrNotFound, u.Id)
	}

	updated := applyPatch(old, u.Patch)
	if err := core.ValidateProfile(updated); err != nil {
		return err
	}
	if updated.Email != old.Email {
		if err := checkIndexOwner(tx, updated.Id, makeEmailKey(updated.Email), updated.Email); err != nil {
			return err
		}
	}
	if updated.Cookie != old.Cookie {
		if err := checkIndexOwner(tx, updated.Id, makeCookieKey(updated.Cookie), updated.Cookie); err != nil {
			return err
		}
	}

	// Unchanged profiles are not rewritten so re-running a batch leaves them as they were.
	if updated.SameContent(old) {
		return nil
	}
	updated.UpdatedAt = now

	if err := tx.Set(key, storage.MarshalProfile(updated)); err != nil {
		return err
	}
	if err := deleteStaleIndexes(tx, old, updated); err != nil {
		return err
	}
	return setIndexes(tx, updated)
}

// applyPatch returns old with every field present in patch written over it.
// Absent fields (empty identity, nil lists, zero time, missing or null map
// entries) leave the stored value untouched.
func applyPatch(old, patch *core.Profile) *core.Profile {
	out := old.Clone()
	if patch.Email != "" {
		out.Email = patch.Email
	}
	if patch.Cookie != "" {
		out.Cookie = patch.Cookie
	}
	if patch.Interests != nil {
		out.Interests = patch.Interests
	}
	if patch.Cohorts != nil {
		out.Cohorts = patch.Cohorts
	}
	if patch.Embeddings != nil {
		out.Embeddings = patch.Embeddings
	}
	if !patch.CreatedAt.IsZero() {
		out.CreatedAt = patch.CreatedAt.UTC()
	}
	for k, v := range patch.Fields {
		if v.IsNull() {
			continue
		}
		if out.Fields == nil {
			out.Fields = make(map[string]core.Value, len(patch.Fields))
		}
		out.Fields[k] = v
	}
	return out
}

// SetEmbeddings replaces the embedding vector of one profile.
func (r *ProfileRepository) SetEmbeddings(ctx context.Context, id core.ID, vector []float32) error {
	errs := r.backend.writeBatch(ctx, 1, func(tx *badger.Txn, _ int) error {
		key := makeProfileKey(id)
		profile, err := readProfile(tx, key)
		if err != nil {
			return err
		}
		if profile == nil {
			return fmt.Errorf("%w: id %d", storage.ErrNotFound, id)
		}
		profile.Embeddings = vector
		profile.UpdatedAt = r.now()
		return tx.Set(key, storage.MarshalProfile(profile))
	})
	return errs[0]
}

// GetProfile retrieves a single profile by ID.
func (r *ProfileRepository) GetProfile(ctx context.Context, id core.ID) (*core.Profile, error) {
	var result *core.Profile
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readProfile(tx, makeProfileKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: id %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// GetProfiles retrieves multiple profiles by their IDs.
func (r *ProfileRepository) GetProfiles(ctx context.Context, ids ...core.ID) ([]*core.Profile, error) {
	var result []*core.Profile
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			profile, err := readProfile(tx, makeProfileKey(id))
			if err != nil {
				return err
			}
			if profile != nil {
				result = append(result, profile)
			}
		}
		return nil
	}, false)
	return result, err
}

// FindByEmail looks a profile up through the email index.
func (r *ProfileRepository) FindByEmail(ctx context.Context, email string) (*core.Profile, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", storage.ErrNotFound)
	}
	return r.findByIndex(makeEmailKey(email), "email "+email)
}

// FindByCookie looks a profile up through the cookie index.
func (r *ProfileRepository) FindByCookie(ctx context.Context, cookie string) (*core.Profile, error) {
	if cookie == "" {
		return nil, fmt.Errorf("%w: empty cookie", storage.ErrNotFound)
	}
	return r.findByIndex(makeCookieKey(cookie), "cookie "+cookie)
}

func (r *ProfileRepository) findByIndex(indexKey []byte, what string) (*core.Profile, error) {
	var result *core.Profile
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, ok, err := readIndex(tx, indexKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, what)
		}
		result, err = readProfile(tx, makeProfileKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, what)
		}
		return nil
	}, false)
	return result, err
}

// Helper methods

func collect(profiles []*core.Profile, errs []error) *core.WriteResult {
	result := &core.WriteResult{}
	for i, p := range profiles {
		result.Record(p.Id, p.IdentityKey(), errs[i])
	}
	return result
}

// readProfile reads a profile from the transaction. Returns nil, nil if absent.
func readProfile(tx *badger.Txn, key []byte) (*core.Profile, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var profile *core.Profile
	err = item.Value(func(val []byte) error {
		var err error
		profile, err = storage.UnmarshalProfile(val)
		return err
	})
	return profile, err
}

func keyExists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// readIndex resolves an index key to the owning profile ID.
func readIndex(tx *badger.Txn, key []byte) (core.ID, bool, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		id, err = storage.UnmarshalID(val)
		return err
	})
	return id, err == nil, err
}

// checkIndexOwner fails with ErrDuplicateKey when value is indexed to another profile.
func checkIndexOwner(tx *badger.Txn, id core.ID, indexKey []byte, value string) error {
	if value == "" {
		return nil
	}
	owner, ok, err := readIndex(tx, indexKey)
	if err != nil {
		return err
	}
	if ok && owner != id {
		return fmt.Errorf("%w: %q belongs to id %d", storage.ErrDuplicateKey, value, owner)
	}
	return nil
}

func setIndexes(tx *badger.Txn, profile *core.Profile) error {
	value := storage.MarshalID(profile.Id)
	if profile.Email != "" {
		if err := tx.Set(makeEmailKey(profile.Email), value); err != nil {
			return err
		}
	}
	if profile.Cookie != "" {
		if err := tx.Set(makeCookieKey(profile.Cookie), value); err != nil {
			return err
		}
	}
	return nil
}

func deleteStaleIndexes(tx *badger.Txn, old, updated *core.Profile) error {
	if old.Email != "" && old.Email != updated.Email {
		if err := tx.Delete(makeEmailKey(old.Email)); err != nil {
			return err
		}
	}
	if old.Cookie != "" && old.Cookie != updated.Cookie {
		if err := tx.Delete(makeCookieKey(old.Cookie)); err != nil {
			return err
		}
	}
	return nil
}

