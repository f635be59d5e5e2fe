package browserdb

import (
	"github.com/intro0siddiqui/browserdb/format"
)

// HistoryTable exposes typed operations on visited-page records.
type HistoryTable struct {
	db *DB
}

// Insert stores a history record keyed by its URL hash.
func (t HistoryTable) Insert(entry *HistoryEntry) error {
	return t.db.PutRaw(format.TableHistory, entry.key(), entry.encode())
}

// Get returns the record for a URL hash.
func (t HistoryTable) Get(urlHash Hash128) (HistoryEntry, bool, error) {
	value, ok := t.db.GetRaw(format.TableHistory, appendHash(nil, urlHash))
	if !ok {
		return HistoryEntry{}, false, nil
	}
	e, err := decodeHistoryEntry(value)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	return e, true, nil
}

// Delete removes the record for a URL hash.
func (t HistoryTable) Delete(urlHash Hash128) error {
	return t.db.DeleteRaw(format.TableHistory, appendHash(nil, urlHash))
}

// InsertBatch stores entries one by one and returns how many were
// accepted before the first error.
func (t HistoryTable) InsertBatch(entries []HistoryEntry) (int, error) {
	for i := range entries {
		if err := t.Insert(&entries[i]); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// CookiesTable exposes typed operations on cookies.
type CookiesTable struct {
	db *DB
}

// Insert stores a cookie keyed by (domain hash, name).
func (t CookiesTable) Insert(entry *CookieEntry) error {
	return t.db.PutRaw(format.TableCookies, cookieKey(entry.DomainHash, entry.Name), entry.encode())
}

// Get returns the cookie for a (domain hash, name) pair.
func (t CookiesTable) Get(domainHash Hash128, name string) (CookieEntry, bool, error) {
	value, ok := t.db.GetRaw(format.TableCookies, cookieKey(domainHash, name))
	if !ok {
		return CookieEntry{}, false, nil
	}
	e, err := decodeCookieEntry(value)
	if err != nil {
		return CookieEntry{}, false, err
	}
	return e, true, nil
}

// Delete removes a cookie.
func (t CookiesTable) Delete(domainHash Hash128, name string) error {
	return t.db.DeleteRaw(format.TableCookies, cookieKey(domainHash, name))
}

// Import stores cookies from another browser, returning the accepted
// count alongside per-cookie failures.
func (t CookiesTable) Import(entries []CookieEntry) (int, []error) {
	imported := 0
	var errs []error
	for i := range entries {
		if err := t.Insert(&entries[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		imported++
	}
	return imported, errs
}

// CacheTable exposes typed operations on cached responses.
type CacheTable struct {
	db *DB
}

// Insert stores a cached response keyed by its URL hash.
func (t CacheTable) Insert(entry *CacheEntry) error {
	return t.db.PutRaw(format.TableCache, entry.key(), entry.encode())
}

// Get returns the cached response for a URL hash.
func (t CacheTable) Get(urlHash Hash128) (CacheEntry, bool, error) {
	value, ok := t.db.GetRaw(format.TableCache, appendHash(nil, urlHash))
	if !ok {
		return CacheEntry{}, false, nil
	}
	e, err := decodeCacheEntry(value)
	if err != nil {
		return CacheEntry{}, false, err
	}
	return e, true, nil
}

// Delete evicts a cached response.
func (t CacheTable) Delete(urlHash Hash128) error {
	return t.db.DeleteRaw(format.TableCache, appendHash(nil, urlHash))
}

// LocalStoreTable exposes typed operations on per-origin storage.
type LocalStoreTable struct {
	db *DB
}

// Insert stores a record keyed by (origin hash, key).
func (t LocalStoreTable) Insert(entry *LocalStoreEntry) error {
	return t.db.PutRaw(format.TableLocalStore, localStoreKey(entry.OriginHash, entry.Key), entry.encode())
}

// Get returns the record for an (origin hash, key) pair.
func (t LocalStoreTable) Get(originHash Hash128, key string) (LocalStoreEntry, bool, error) {
	value, ok := t.db.GetRaw(format.TableLocalStore, localStoreKey(originHash, key))
	if !ok {
		return LocalStoreEntry{}, false, nil
	}
	e, err := decodeLocalStoreEntry(value)
	if err != nil {
		return LocalStoreEntry{}, false, err
	}
	return e, true, nil
}

// Delete removes a record.
func (t LocalStoreTable) Delete(originHash Hash128, key string) error {
	return t.db.DeleteRaw(format.TableLocalStore, localStoreKey(originHash, key))
}

// SettingsTable exposes string settings stored as raw UTF-8.
type SettingsTable struct {
	db *DB
}

// Set stores a setting.
func (t SettingsTable) Set(key, value string) error {
	return t.db.PutRaw(format.TableSettings, []byte(key), []byte(value))
}

// Get returns a setting's value.
func (t SettingsTable) Get(key string) (string, bool) {
	value, ok := t.db.GetRaw(format.TableSettings, []byte(key))
	if !ok {
		return "", false
	}
	return string(value), true
}

// Delete removes a setting.
func (t SettingsTable) Delete(key string) error {
	return t.db.DeleteRaw(format.TableSettings, []byte(key))
}
