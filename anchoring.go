package anchoring

import (
	"encoding/json"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

type (
	// Pointer is a version pointer:
	// the content hash of one immutable version of a resource.
	// Pointers are opaque to this package.
	// Two pointers are the same version iff they are equal strings.
	Pointer string

	// Chain is the version history of one anchor identifier,
	// oldest first.
	Chain []Pointer
)

// PointerFor computes the Pointer of some content:
// a CIDv1 string with the raw codec and a sha2-256 multihash.
func PointerFor(data []byte) (Pointer, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.Wrap(err, "computing multihash")
	}
	return Pointer(cid.NewCidV1(cid.Raw, sum).String()), nil
}

func (p Pointer) String() string {
	return string(p)
}

// Head returns the most recently accepted pointer in the chain.
// The boolean is false iff the chain is empty.
func (c Chain) Head() (Pointer, bool) {
	if len(c) == 0 {
		return "", false
	}
	return c[len(c)-1], true
}

// HasPrefix tells whether other is a (not necessarily strict) prefix of c.
func (c Chain) HasPrefix(other Chain) bool {
	if len(other) > len(c) {
		return false
	}
	for i, p := range other {
		if c[i] != p {
			return false
		}
	}
	return true
}

// Key is the pair of addresses needed to anchor a resource:
// the network domain, which selects the anchoring services to contact,
// and the anchor identifier within those services.
type Key struct {
	Domain string
	ID     string
}

// ParseKey parses a key in the form "domain:id".
// Only the first colon separates the domain;
// the identifier may contain further colons.
func ParseKey(s string) (Key, error) {
	domain, id, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, errors.Errorf("key %q has no domain separator", s)
	}
	if domain == "" {
		return Key{}, errors.Errorf("key %q has an empty domain", s)
	}
	if id == "" {
		return Key{}, errors.Errorf("key %q has an empty anchor id", s)
	}
	return Key{Domain: domain, ID: id}, nil
}

func (k Key) String() string {
	return k.Domain + ":" + k.ID
}

// Record is the payload of a write.
// Last is nil for the first version of a resource.
// ZKPValue and DigitalProof are opaque to this module;
// a nil value means the field is absent.
type Record struct {
	Last         *Pointer
	New          Pointer
	ZKPValue     json.RawMessage
	DigitalProof json.RawMessage
}

// NewRecord produces a Record moving the head from last to next.
// An empty last means next is the first version.
func NewRecord(last, next Pointer) Record {
	r := Record{New: next}
	if last != "" {
		r.Last = &last
	}
	return r
}

// Follows tells whether r may be appended to a chain whose current head is given.
func (r Record) Follows(head Pointer, ok bool) bool {
	if r.Last == nil {
		return !ok
	}
	return ok && *r.Last == head
}

type wireHash struct {
	Last *Pointer `json:"last"`
	New  Pointer  `json:"new"`
}

type wireRecord struct {
	Hash         wireHash        `json:"hash"`
	ZKPValue     json.RawMessage `json:"zkpValue,omitempty"`
	DigitalProof json.RawMessage `json:"digitalProof,omitempty"`
}

// MarshalJSON produces the wire form of r.
// An absent Last is encoded as null.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Hash:         wireHash{Last: r.Last, New: r.New},
		ZKPValue:     r.ZKPValue,
		DigitalProof: r.DigitalProof,
	})
}

// UnmarshalJSON parses the wire form of a Record.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Record{
		Last:         w.Hash.Last,
		New:          w.Hash.New,
		ZKPValue:     nullToNil(w.ZKPValue),
		DigitalProof: nullToNil(w.DigitalProof),
	}
	return nil
}

func nullToNil(m json.RawMessage) json.RawMessage {
	if len(m) == 0 || string(m) == "null" {
		return nil
	}
	return m
}
