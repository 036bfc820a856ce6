// Package batching partitions payout records into provider-sized batches
// and assigns the batch and item identifiers that travel with each record
// through dispatch and reconciliation.
package batching

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

const (
	// DefaultSize is the largest batch the payout provider accepts.
	DefaultSize = 250

	// TokenLen is the length of a batch token.
	TokenLen = 6
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Source is the random source used to draw tokens. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Assigner hands out batch tokens and item ids. The zero value uses
// DefaultSize and the global random source.
type Assigner struct {
	Size int
	Rand Source

	reserved map[string]struct{}
}

// New returns an Assigner with the given batch size and random source.
// A nil src falls back to the global source.
func New(size int, src Source) *Assigner {
	return &Assigner{Size: size, Rand: src}
}

// Reserve marks tokens as taken so later draws never repeat them.
func (a *Assigner) Reserve(tokens ...string) {
	if a.reserved == nil {
		a.reserved = make(map[string]struct{})
	}
	for _, t := range tokens {
		a.reserved[t] = struct{}{}
	}
}

// Token draws TokenLen distinct characters from [A-Za-z0-9] without
// replacement. The token is not reserved.
func (a *Assigner) Token() string {
	src := a.Rand
	if src == nil {
		src = globalSource{}
	}
	pool := []byte(alphabet)
	for i := 0; i < TokenLen; i++ {
		j := i + src.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return string(pool[:TokenLen])
}

func (a *Assigner) uniqueToken() string {
	for {
		t := a.Token()
		if _, taken := a.reserved[t]; !taken {
			a.Reserve(t)
			return t
		}
	}
}

func (a *Assigner) size() int {
	if a.Size < 1 {
		return DefaultSize
	}
	return a.Size
}

// Assign partitions n record ordinals into batches. Every full batch of
// Size consecutive ordinals shares one token; full-batch tokens are sorted
// so batches appear in token order. The n mod Size remainder shares one
// further token placed last. Item ids are "{batch}_{ordinal}" with the
// zero-based ordinal across the whole run.
func (a *Assigner) Assign(n int) []domain.Assignment {
	if n <= 0 {
		return nil
	}
	size := a.size()
	full, rest := n/size, n%size

	tokens := make([]string, full)
	for i := range tokens {
		tokens[i] = a.uniqueToken()
	}
	sort.Strings(tokens)
	if rest > 0 {
		tokens = append(tokens, a.uniqueToken())
	}

	out := make([]domain.Assignment, n)
	for i := range out {
		b := tokens[i/size]
		out[i] = domain.Assignment{BatchID: b, ItemID: ItemID(b, i)}
	}
	return out
}

// ItemID formats the item id of ordinal within batch.
func ItemID(batch string, ordinal int) string {
	return fmt.Sprintf("%s_%d", batch, ordinal)
}
