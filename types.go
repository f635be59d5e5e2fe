package browserdb

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"

	"github.com/intro0siddiqui/browserdb/format"
)

// ErrDecode reports value bytes that do not decode as the expected
// typed record.
var ErrDecode = errors.New("browserdb: malformed record value")

// Hash128 is a 128-bit identity hash, used for URL, domain and origin
// keys. Encoded little-endian, Lo first.
type Hash128 struct {
	Lo uint64
	Hi uint64
}

// HashBytes derives a Hash128 from arbitrary bytes.
func HashBytes(data []byte) Hash128 {
	lo, hi := murmur3.Sum128(data)
	return Hash128{Lo: lo, Hi: hi}
}

// HashURL hashes a URL for the history and cache tables.
func HashURL(url string) Hash128 { return HashBytes([]byte(url)) }

// HashDomain hashes a cookie domain.
func HashDomain(domain string) Hash128 { return HashBytes([]byte(domain)) }

// HashOrigin hashes a local-storage origin.
func HashOrigin(origin string) Hash128 { return HashBytes([]byte(origin)) }

// Hash128FromUint builds a hash from a small integer, handy in tests
// and imports.
func Hash128FromUint(v uint64) Hash128 { return Hash128{Lo: v} }

func appendHash(b []byte, h Hash128) []byte {
	b = binary.LittleEndian.AppendUint64(b, h.Lo)
	return binary.LittleEndian.AppendUint64(b, h.Hi)
}

func readHash(r io.Reader) (Hash128, error) {
	var h Hash128
	if err := binary.Read(r, binary.LittleEndian, &h.Lo); err != nil {
		return h, err
	}
	err := binary.Read(r, binary.LittleEndian, &h.Hi)
	return h, err
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func appendBytes(b, p []byte) []byte {
	b = binary.AppendUvarint(b, uint64(len(p)))
	return append(b, p...)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, ErrDecode
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, err
	}
	return p, nil
}

func readString(r *bytes.Reader) (string, error) {
	p, err := readBytes(r)
	return string(p), err
}

// Cookie flag bits.
const (
	CookieSecure     uint8 = 1 << 0
	CookieHTTPOnly   uint8 = 1 << 1
	CookieSameSite   uint8 = 1 << 2
	CookiePersistent uint8 = 1 << 3
)

// HistoryEntry is one visited-page record keyed by the URL hash.
type HistoryEntry struct {
	Timestamp  uint64 // unix ms
	URLHash    Hash128
	Title      string
	VisitCount uint32
}

// NewHistoryEntry stamps a first-visit record.
func NewHistoryEntry(urlHash Hash128, title string) HistoryEntry {
	return HistoryEntry{
		Timestamp:  format.Now(),
		URLHash:    urlHash,
		Title:      title,
		VisitCount: 1,
	}
}

func (e *HistoryEntry) key() []byte {
	return appendHash(nil, e.URLHash)
}

func (e *HistoryEntry) encode() []byte {
	b := binary.LittleEndian.AppendUint64(nil, e.Timestamp)
	b = appendHash(b, e.URLHash)
	b = appendString(b, e.Title)
	return binary.LittleEndian.AppendUint32(b, e.VisitCount)
}

func decodeHistoryEntry(value []byte) (HistoryEntry, error) {
	var e HistoryEntry
	r := bytes.NewReader(value)

	if err := binary.Read(r, binary.LittleEndian, &e.Timestamp); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	var err error
	if e.URLHash, err = readHash(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Title, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if err := binary.Read(r, binary.LittleEndian, &e.VisitCount); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	return e, nil
}

// CookieEntry is one cookie keyed by (domain hash, name).
type CookieEntry struct {
	DomainHash Hash128
	Name       string
	Value      string
	Expiry     uint64 // unix ms
	Flags      uint8
}

// NewCookieEntry builds a cookie with no flags set.
func NewCookieEntry(domainHash Hash128, name, value string, expiry uint64) CookieEntry {
	return CookieEntry{DomainHash: domainHash, Name: name, Value: value, Expiry: expiry}
}

// SetSecure marks the cookie secure-only.
func (e *CookieEntry) SetSecure() { e.Flags |= CookieSecure }

// SetHTTPOnly hides the cookie from scripts.
func (e *CookieEntry) SetHTTPOnly() { e.Flags |= CookieHTTPOnly }

// Secure reports the secure flag.
func (e *CookieEntry) Secure() bool { return e.Flags&CookieSecure != 0 }

// HTTPOnly reports the http-only flag.
func (e *CookieEntry) HTTPOnly() bool { return e.Flags&CookieHTTPOnly != 0 }

func cookieKey(domainHash Hash128, name string) []byte {
	return appendString(appendHash(nil, domainHash), name)
}

func (e *CookieEntry) encode() []byte {
	b := appendHash(nil, e.DomainHash)
	b = appendString(b, e.Name)
	b = appendString(b, e.Value)
	b = binary.LittleEndian.AppendUint64(b, e.Expiry)
	return append(b, e.Flags)
}

func decodeCookieEntry(value []byte) (CookieEntry, error) {
	var e CookieEntry
	r := bytes.NewReader(value)

	var err error
	if e.DomainHash, err = readHash(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Name, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Value, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Expiry); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Flags); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	return e, nil
}

// CacheEntry is one cached response keyed by the URL hash.
type CacheEntry struct {
	URLHash      Hash128
	Headers      string
	Body         []byte
	ETag         string
	LastModified uint64 // unix ms
}

func (e *CacheEntry) key() []byte {
	return appendHash(nil, e.URLHash)
}

func (e *CacheEntry) encode() []byte {
	b := appendHash(nil, e.URLHash)
	b = appendString(b, e.Headers)
	b = appendBytes(b, e.Body)
	b = appendString(b, e.ETag)
	return binary.LittleEndian.AppendUint64(b, e.LastModified)
}

func decodeCacheEntry(value []byte) (CacheEntry, error) {
	var e CacheEntry
	r := bytes.NewReader(value)

	var err error
	if e.URLHash, err = readHash(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Headers, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Body, err = readBytes(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.ETag, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if err := binary.Read(r, binary.LittleEndian, &e.LastModified); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	return e, nil
}

// LocalStoreEntry is one per-origin storage record keyed by
// (origin hash, key).
type LocalStoreEntry struct {
	OriginHash Hash128
	Key        string
	Value      string
}

func localStoreKey(originHash Hash128, key string) []byte {
	return appendString(appendHash(nil, originHash), key)
}

func (e *LocalStoreEntry) encode() []byte {
	b := appendHash(nil, e.OriginHash)
	b = appendString(b, e.Key)
	return appendString(b, e.Value)
}

func decodeLocalStoreEntry(value []byte) (LocalStoreEntry, error) {
	var e LocalStoreEntry
	r := bytes.NewReader(value)

	var err error
	if e.OriginHash, err = readHash(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Key, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	if e.Value, err = readString(r); err != nil {
		return e, errors.Wrap(ErrDecode, err.Error())
	}
	return e, nil
}

// SettingEntry is one settings pair; key and value are stored as raw
// UTF-8.
type SettingEntry struct {
	Key   string
	Value string
}
