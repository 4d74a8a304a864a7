// Package transform normalizes raw source records into canonical products.
package transform

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"storefront/internal/model"
)

const (
	DefaultName   = "Untitled Product"
	DefaultRating = 4.5
	DefaultLength = 5.5
	DefaultWeight = 600
	MaxRating     = 5
)

type Option func(*Transformer)

// WithRand fixes the random source used for SKU suffixes.
func WithRand(r *rand.Rand) Option {
	return func(t *Transformer) { t.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// Transformer is safe for concurrent use.
type Transformer struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func New(opts ...Option) *Transformer {
	t := &Transformer{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transform never fails: every missing or invalid field takes its default.
func (t *Transformer) Transform(raw model.RawRecord) model.Product {
	now := t.now()
	p := model.Product{
		Name:           raw.Name.String(),
		Fabric:         raw.Fabric.String(),
		Occasion:       raw.Occasion.String(),
		Category:       NormalizeCategory(raw.Category.String()),
		Images:         images(raw),
		Colors:         colors(raw),
		BlouseIncluded: raw.BlouseIncluded.Or(true),
		Featured:       raw.Featured.Or(false),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Name == "" {
		p.Name = DefaultName
	}
	p.Description = raw.Description.String()
	if p.Description == "" {
		p.Description = describe(p.Name, p.Fabric, p.Occasion)
	}

	p.Price = nonNegative(raw.Price, 0)
	p.OriginalPrice = nonNegative(raw.OriginalPrice, p.Price)
	p.InStock = count(raw.InStock)
	p.Reviews = count(raw.Reviews)
	p.Rating = DefaultRating
	if raw.Rating.Valid && !math.IsNaN(raw.Rating.Value) {
		p.Rating = math.Min(math.Max(raw.Rating.Value, 0), MaxRating)
	}

	length, size := positive(raw.Length), positive(raw.Size)
	switch {
	case length == 0 && size == 0:
		length, size = DefaultLength, DefaultLength
	case length == 0:
		length = size
	case size == 0:
		size = length
	}
	p.Length, p.Size = length, size
	p.Weight = positive(raw.Weight)
	if p.Weight == 0 {
		p.Weight = DefaultWeight
	}

	p.SKU = raw.SKU.String()
	if p.SKU == "" {
		p.SKU = t.sku(p.Category, p.Name, now)
	}
	p.Refresh()
	return p
}

func describe(name, fabric, occasion string) string {
	var b strings.Builder
	b.WriteString(name)
	if fabric != "" {
		b.WriteString(" crafted in ")
		b.WriteString(fabric)
	}
	if occasion != "" {
		b.WriteString(", perfect for ")
		b.WriteString(occasion)
	}
	b.WriteString(".")
	return b.String()
}

func images(raw model.RawRecord) []string {
	out := []string{}
	for _, s := range raw.Images.Values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		if s := raw.Image.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func colors(raw model.RawRecord) []string {
	src := raw.Colors.Values
	if len(src) == 0 && raw.Color.String() != "" {
		src = strings.Split(raw.Color.String(), ",")
	}
	out := []string{}
	seen := make(map[string]struct{})
	for _, c := range src {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func nonNegative(n model.Number, def float64) float64 {
	if !n.Valid || n.Value < 0 || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return def
	}
	return n.Value
}

func positive(n model.Number) float64 {
	if !n.Valid || !(n.Value > 0) || math.IsInf(n.Value, 0) {
		return 0
	}
	return n.Value
}

func count(n model.Number) int {
	if !n.Valid || !(n.Value > 0) || n.Value > math.MaxInt32 {
		return 0
	}
	return int(n.Value)
}

// sku builds {CODE}-{INITIALS}-{NNNN}, or a time based token when the
// category has no code.
func (t *Transformer) sku(cat, name string, now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	code, ok := CategoryCode(cat)
	if !ok {
		const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		suffix := make([]byte, 6)
		for i := range suffix {
			suffix[i] = alphabet[t.rng.Intn(len(alphabet))]
		}
		return "SKU-" + strings.ToUpper(strconv.FormatInt(now.UnixNano(), 36)) + "-" + string(suffix)
	}
	return fmt.Sprintf("%s-%s-%04d", code, initials(name), t.rng.Intn(10000))
}

func initials(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
		if b.Len() >= 4 {
			break
		}
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}
