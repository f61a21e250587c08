// Package stamp interns (status, time, author, module, path) tuples into
// compact integer tokens.
//
// Equal tuples always yield the same token, so token equality implies value
// equality. The tuple->token map is sharded by a murmur3 hash of the encoded
// tuple; first-seen insertion happens under the shard lock only, so
// concurrent first use of one tuple never produces two tokens.
package stamp

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/roach88/chronicle/internal/ir"
)

const shardCount = 32

type shard struct {
	mu sync.Mutex
	m  map[ir.Stamp]ir.StampToken
}

// Interner is safe for concurrent use.
type Interner struct {
	shards [shardCount]shard

	// tokens is the token->stamp table; index = token-1.
	tokensMu sync.RWMutex
	tokens   []ir.Stamp

	aliasMu  sync.RWMutex
	aliases  map[ir.StampToken][]ir.StampToken
	comments map[ir.StampToken]string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	in := &Interner{
		aliases:  make(map[ir.StampToken][]ir.StampToken),
		comments: make(map[ir.StampToken]string),
	}
	for i := range in.shards {
		in.shards[i].m = make(map[ir.Stamp]ir.StampToken)
	}
	return in
}

func shardFor(s ir.Stamp) int {
	var buf [21]byte
	buf[0] = byte(s.Status)
	binary.BigEndian.PutUint64(buf[1:], uint64(s.Time))
	binary.BigEndian.PutUint32(buf[9:], uint32(s.Author))
	binary.BigEndian.PutUint32(buf[13:], uint32(s.Module))
	binary.BigEndian.PutUint32(buf[17:], uint32(s.Path))
	return int(murmur3.Sum32(buf[:]) % shardCount)
}

// Intern returns the token for s, creating it on first use.
func (in *Interner) Intern(s ir.Stamp) (ir.StampToken, error) {
	if err := s.Validate(); err != nil {
		return 0, fmt.Errorf("intern stamp: %w", err)
	}

	sh := &in.shards[shardFor(s)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if tok, ok := sh.m[s]; ok {
		return tok, nil
	}

	in.tokensMu.Lock()
	in.tokens = append(in.tokens, s)
	tok := ir.StampToken(len(in.tokens))
	in.tokensMu.Unlock()

	sh.m[s] = tok
	return tok, nil
}

// Lookup returns the token of s without creating one.
func (in *Interner) Lookup(s ir.Stamp) (ir.StampToken, bool) {
	sh := &in.shards[shardFor(s)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	tok, ok := sh.m[s]
	return tok, ok
}

// Stamp returns the tuple behind a token.
func (in *Interner) Stamp(tok ir.StampToken) (ir.Stamp, error) {
	in.tokensMu.RLock()
	defer in.tokensMu.RUnlock()
	if tok < 1 || int(tok) > len(in.tokens) {
		return ir.Stamp{}, &ir.NotFoundError{Kind: "stamp", Key: fmt.Sprintf("%d", tok)}
	}
	return in.tokens[tok-1], nil
}

// Compare orders two tokens by the stamp total order. Unknown tokens sort
// before every known token.
func (in *Interner) Compare(a, b ir.StampToken) int {
	sa, errA := in.Stamp(a)
	sb, errB := in.Stamp(b)
	switch {
	case errA != nil && errB != nil:
		return int(a) - int(b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return ir.CompareStamps(sa, sb)
}

// Len returns the number of interned stamps.
func (in *Interner) Len() int {
	in.tokensMu.RLock()
	defer in.tokensMu.RUnlock()
	return len(in.tokens)
}

// Stamps returns every interned stamp in token order.
func (in *Interner) Stamps() []ir.Stamp {
	in.tokensMu.RLock()
	defer in.tokensMu.RUnlock()
	return slices.Clone(in.tokens)
}

// AddAlias records alias as an alternate stamp of s. Both are interned.
func (in *Interner) AddAlias(s, alias ir.Stamp) error {
	st, err := in.Intern(s)
	if err != nil {
		return err
	}
	at, err := in.Intern(alias)
	if err != nil {
		return err
	}

	in.aliasMu.Lock()
	defer in.aliasMu.Unlock()
	if !slices.Contains(in.aliases[st], at) {
		in.aliases[st] = append(in.aliases[st], at)
	}
	return nil
}

// Aliases returns the alias stamps recorded for s, in insertion order.
func (in *Interner) Aliases(s ir.Stamp) []ir.Stamp {
	st, ok := in.Lookup(s)
	if !ok {
		return nil
	}
	in.aliasMu.RLock()
	toks := slices.Clone(in.aliases[st])
	in.aliasMu.RUnlock()

	out := make([]ir.Stamp, 0, len(toks))
	for _, tok := range toks {
		if as, err := in.Stamp(tok); err == nil {
			out = append(out, as)
		}
	}
	return out
}

// SetComment attaches a comment to s, replacing any previous comment.
func (in *Interner) SetComment(s ir.Stamp, comment string) error {
	st, err := in.Intern(s)
	if err != nil {
		return err
	}
	in.aliasMu.Lock()
	defer in.aliasMu.Unlock()
	in.comments[st] = comment
	return nil
}

// Comment returns the comment recorded for s.
func (in *Interner) Comment(s ir.Stamp) (string, bool) {
	st, ok := in.Lookup(s)
	if !ok {
		return "", false
	}
	in.aliasMu.RLock()
	defer in.aliasMu.RUnlock()
	c, ok := in.comments[st]
	return c, ok
}

// AliasRecords returns every alias pair as records, ordered by stamp token.
func (in *Interner) AliasRecords() []ir.StampAlias {
	in.aliasMu.RLock()
	keys := make([]ir.StampToken, 0, len(in.aliases))
	for k := range in.aliases {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([][2]ir.StampToken, 0, len(keys))
	for _, k := range keys {
		for _, a := range in.aliases[k] {
			pairs = append(pairs, [2]ir.StampToken{k, a})
		}
	}
	in.aliasMu.RUnlock()

	out := make([]ir.StampAlias, 0, len(pairs))
	for _, p := range pairs {
		s, err1 := in.Stamp(p[0])
		a, err2 := in.Stamp(p[1])
		if err1 == nil && err2 == nil {
			out = append(out, ir.StampAlias{Stamp: s, Alias: a})
		}
	}
	return out
}

// CommentRecords returns every stamp comment, ordered by stamp token.
func (in *Interner) CommentRecords() []ir.StampComment {
	in.aliasMu.RLock()
	keys := make([]ir.StampToken, 0, len(in.comments))
	for k := range in.comments {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	texts := make([]string, len(keys))
	for i, k := range keys {
		texts[i] = in.comments[k]
	}
	in.aliasMu.RUnlock()

	out := make([]ir.StampComment, 0, len(keys))
	for i, k := range keys {
		if s, err := in.Stamp(k); err == nil {
			out = append(out, ir.StampComment{Stamp: s, Comment: texts[i]})
		}
	}
	return out
}
